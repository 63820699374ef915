// Package categorize suggests tags and a priority for free-form task text.
//
// When an upstream categorizer URL is configured requests are proxied to it;
// otherwise a small set of keyword rules answers locally.
package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tgienger/taskdemo/internal/models"
)

const defaultTimeout = 5 * time.Second

// ErrUpstream is returned when the upstream categorizer fails or answers
// with a non-2xx status
var ErrUpstream = errors.New("categorizer upstream error")

// Suggestion is the categorizer's answer
type Suggestion struct {
	Tags     []string        `json:"tags"`
	Priority models.Priority `json:"priority"`
}

// Health is the categorizer's health report
type Health struct {
	Status string `json:"status"`
}

type request struct {
	Text string `json:"text"`
}

// Client talks to the categorizer
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client. An empty baseURL selects the built-in rules.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Remote reports whether requests go to an upstream service
func (c *Client) Remote() bool {
	return c.baseURL != ""
}

// Categorize suggests tags and a priority for text
func (c *Client) Categorize(ctx context.Context, text string) (*Suggestion, error) {
	if !c.Remote() {
		s := Rules(text)
		return &s, nil
	}

	body, err := json.Marshal(request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var s Suggestion
	if err := c.do(ctx, http.MethodPost, "/categorize", body, &s); err != nil {
		return nil, err
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return &s, nil
}

// Health checks the upstream categorizer. The built-in rules are always ok.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	if !c.Remote() {
		return &Health{Status: "ok"}, nil
	}

	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}

var rules = []struct {
	tag      string
	keywords []string
}{
	{"finance", []string{"pay", "invoice", "rent"}},
	{"uni", []string{"study", "exam", "course", "uni"}},
	{"errand", []string{"buy", "grocer", "shop"}},
}

// Rules categorizes text with keyword matching. Text matching no rule is
// tagged misc; "urgent" or "asap" raise the priority to URGENT.
func Rules(text string) Suggestion {
	txt := strings.ToLower(text)

	tags := []string{}
	for _, r := range rules {
		for _, k := range r.keywords {
			if strings.Contains(txt, k) {
				tags = append(tags, r.tag)
				break
			}
		}
	}
	if len(tags) == 0 {
		tags = append(tags, "misc")
	}

	priority := models.PriorityMedium
	if strings.Contains(txt, "urgent") || strings.Contains(txt, "asap") {
		priority = models.PriorityUrgent
	}
	return Suggestion{Tags: tags, Priority: priority}
}
