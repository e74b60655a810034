package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSender_SignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSig string
	var gotReminderID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Napomni-Signature")
		gotReminderID = r.Header.Get("X-Napomni-Reminder-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender()
	result := sender.Send(context.Background(), NotificationRequest{
		URL:       server.URL,
		Secret:    "s3cret",
		Timeout:   5 * time.Second,
		AttemptID: "attempt-1",
		Payload: NotificationPayload{
			ReminderID: "rem-1",
			EventID:    "evt-1",
			UserID:     42,
			Title:      "созвон",
			Text:       "Напоминание: созвон в 13:00",
		},
	})

	if !result.IsSuccess() {
		t.Fatalf("Send failed: status=%d err=%v", result.StatusCode, result.Error)
	}
	if gotReminderID != "rem-1" {
		t.Errorf("reminder header = %q, want rem-1", gotReminderID)
	}
	if !VerifySignature("s3cret", gotBody, gotSig) {
		t.Error("signature does not verify against body")
	}
	if VerifySignature("wrong", gotBody, gotSig) {
		t.Error("signature verified with wrong secret")
	}

	var payload NotificationPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if payload.Title != "созвон" {
		t.Errorf("title = %q, want созвон", payload.Title)
	}
}

func TestHTTPSender_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := NewHTTPSender()
	result := sender.Send(context.Background(), NotificationRequest{URL: server.URL})

	if result.IsSuccess() {
		t.Error("503 reported as success")
	}
	if !result.IsRetryable() {
		t.Error("503 must be retryable")
	}
}

func TestHTTPSender_ConnectionError(t *testing.T) {
	sender := NewHTTPSender()
	result := sender.Send(context.Background(), NotificationRequest{
		URL:     "http://127.0.0.1:1/unreachable",
		Timeout: time.Second,
	})

	if result.Error == nil {
		t.Fatal("expected connection error")
	}
	if !result.IsRetryable() {
		t.Error("connection errors must be retryable")
	}
}
