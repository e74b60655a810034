// Package ai wraps the OpenAI-compatible API used for advisory note
// generation, corpus embeddings and voice transcription.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion means the model returned no usable choice.
var ErrEmptyCompletion = errors.New("empty completion from model")

type Config struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible gateways

	ChatModel       string
	EmbeddingModel  string
	TranscribeModel string

	MaxRetries    int
	RetryInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChatModel:       openai.GPT4oMini,
		EmbeddingModel:  string(openai.SmallEmbedding3),
		TranscribeModel: openai.Whisper1,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
	}
}

type Provider struct {
	client *openai.Client
	config Config
}

func New(config Config) *Provider {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 2 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Chat runs a single system+user exchange and returns the assistant text.
func (p *Provider) Chat(ctx context.Context, system, user string) (string, error) {
	var text string
	err := p.doWithRetry(ctx, "chat", func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.config.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	return text, err
}

// Embed returns the embedding vector for the text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := p.doWithRetry(ctx, "embed", func() error {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(p.config.EmbeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return ErrEmptyCompletion
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	return embedding, err
}

// Transcribe converts a voice message to text. The filename extension
// tells the API the audio container format.
func (p *Provider) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	var text string
	err := p.doWithRetry(ctx, "transcribe", func() error {
		resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    p.config.TranscribeModel,
			FilePath: filename,
			Reader:   audio,
		})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	return text, err
}

// doWithRetry runs fn up to MaxRetries times with a fixed pause between
// attempts. Context cancellation stops retrying immediately.
func (p *Provider) doWithRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 1 {
			log.Printf("ai: %s attempt=%d retrying after %s", op, attempt, p.config.RetryInterval)
			timer := time.NewTimer(p.config.RetryInterval)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("ai: %s attempt=%d failed: %v", op, attempt, lastErr)
	}
	return fmt.Errorf("%s after %d attempts: %w", op, p.config.MaxRetries, lastErr)
}
