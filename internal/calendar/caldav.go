package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"napomni/internal/domain"
)

type Config struct {
	// BaseURL is the calendar collection URL, e.g.
	// https://dav.example.com/calendars/user/default/
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to a CalDAV server over plain HTTP PUT/DELETE of .ics
// objects. No discovery, no sync-token handling; one object per event.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
	}
}

// PutEvent creates or overwrites the event's calendar object and returns
// its reference.
func (c *Client) PutEvent(ctx context.Context, event domain.Event) (domain.CalendarRef, error) {
	objectURL := c.objectURL(event.ID.String())
	body := BuildICS(event)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, strings.NewReader(body))
	if err != nil {
		return domain.CalendarRef{}, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.CalendarRef{}, fmt.Errorf("caldav put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return domain.CalendarRef{}, fmt.Errorf("caldav put: unexpected status %d", resp.StatusCode)
	}

	return domain.CalendarRef{ID: event.ID.String(), URL: objectURL}, nil
}

// DeleteEvent removes the event's calendar object. A 404 is treated as
// success; the object is gone either way.
func (c *Client) DeleteEvent(ctx context.Context, ref domain.CalendarRef) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, ref.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("caldav delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("caldav delete: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) objectURL(uid string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	return base + "/" + uid + ".ics"
}
