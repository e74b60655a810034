// notify-receiver is a local stand-in for the bot gateway: it accepts
// reminder notifications, checks their HMAC signature and keeps the last
// few payloads for inspection. Development only.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type notification struct {
	Timestamp  string `json:"timestamp"`
	AttemptID  string `json:"attempt_id"`
	ReminderID string `json:"reminder_id"`
	Signature  string `json:"signature"`
	Verified   *bool  `json:"verified,omitempty"`
	Body       string `json:"body"`
}

type stats struct {
	Count             int64          `json:"count"`
	BadSignatures     int64          `json:"bad_signatures"`
	LastNotifications []notification `json:"last_notifications"`
	Since             string         `json:"since"`
}

var (
	mu            sync.Mutex
	count         int64
	badSignatures int64
	last          []notification
	since         time.Time
	maxStored     = 50

	secret = os.Getenv("WEBHOOK_SECRET")
)

func main() {
	since = time.Now().UTC()

	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	if secret == "" {
		log.Println("WEBHOOK_SECRET not set; signatures will not be checked")
	}

	http.HandleFunc("/notify", notifyHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		badSignatures = 0
		last = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("notify-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func notifyHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	n := notification{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		AttemptID:  r.Header.Get("X-Napomni-Attempt-ID"),
		ReminderID: r.Header.Get("X-Napomni-Reminder-ID"),
		Signature:  r.Header.Get("X-Napomni-Signature"),
		Body:       string(body),
	}

	if secret != "" {
		ok := verifySignature(body, n.Signature)
		n.Verified = &ok
	}

	mu.Lock()
	count++
	if n.Verified != nil && !*n.Verified {
		badSignatures++
	}
	last = append(last, n)
	if len(last) > maxStored {
		last = last[len(last)-maxStored:]
	}
	current := count
	mu.Unlock()

	if n.Verified != nil && !*n.Verified {
		log.Printf("notification #%d: BAD SIGNATURE reminder=%s", current, n.ReminderID)
	} else {
		log.Printf("notification #%d: reminder=%s %s", current, n.ReminderID, string(body))
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:             count,
		BadSignatures:     badSignatures,
		LastNotifications: last,
		Since:             since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
