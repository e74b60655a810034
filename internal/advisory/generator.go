package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"napomni/internal/domain"
)

const systemPrompt = `Ты ассистент-планировщик. По названию события и выдержкам из заметок пользователя напиши одну короткую подготовительную заметку (1-2 предложения, на языке события). Только сама заметка, без преамбулы. Если сказать нечего, ответь пустой строкой.`

// ChatModel produces a completion. Implemented by ai.Provider.
type ChatModel interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// ChatGenerator writes advisory notes with a chat model.
type ChatGenerator struct {
	model ChatModel
}

func NewChatGenerator(model ChatModel) *ChatGenerator {
	return &ChatGenerator{model: model}
}

func (g *ChatGenerator) Generate(ctx context.Context, event domain.Event, passages []domain.Passage) (string, error) {
	note, err := g.model.Chat(ctx, systemPrompt, buildUserPrompt(event, passages))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(note), nil
}

func buildUserPrompt(event domain.Event, passages []domain.Passage) string {
	var b strings.Builder

	loc, err := time.LoadLocation(event.Span.Timezone)
	if err != nil {
		loc = time.UTC
	}
	fmt.Fprintf(&b, "Событие: %s\n", event.Title)
	fmt.Fprintf(&b, "Начало: %s\n", event.Span.Start.In(loc).Format("02.01.2006 15:04"))

	if len(passages) > 0 {
		b.WriteString("Выдержки из заметок:\n")
		for _, p := range passages {
			fmt.Fprintf(&b, "- %s\n", p.Text)
		}
	}
	return b.String()
}

var _ Generator = (*ChatGenerator)(nil)
