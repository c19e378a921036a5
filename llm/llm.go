// Package llm talks to the external generative-text provider: it flattens a
// list of role-tagged chat turns into one prompt string, posts it, and
// extracts plain reply text from whichever response shape the provider sends.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Turn is a single role-tagged chat message from the client.
type Turn struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// Config holds the provider endpoint settings.
type Config struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// UpstreamError carries the provider's non-success status and body so the
// caller can surface diagnostics instead of swallowing them.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// ErrTimeout marks a provider call that exceeded the configured timeout.
var ErrTimeout = errors.New("provider request timed out")

// Result is the proxied reply plus the raw provider payload for diagnosis.
type Result struct {
	Reply string          `json:"reply"`
	Raw   json.RawMessage `json:"raw"`
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func rolePrefix(role string) string {
	switch role {
	case "", "user":
		return "User"
	case "therapist":
		return "Therapist"
	case "bot", "assistant":
		return "Assistant"
	default:
		return strings.ToUpper(role[:1]) + role[1:]
	}
}

// BuildPrompt concatenates system turns into a preamble, linearizes the rest
// into a role-prefixed transcript, and appends the assistant cue.
func BuildPrompt(turns []Turn) string {
	var preamble []string
	var transcript []string

	for _, t := range turns {
		if t.Role == "system" {
			preamble = append(preamble, t.Content)
			continue
		}
		transcript = append(transcript, rolePrefix(t.Role)+": "+t.Content)
	}

	var b strings.Builder
	if len(preamble) > 0 {
		b.WriteString(strings.Join(preamble, "\n"))
		b.WriteString("\n\n")
	}
	if len(transcript) > 0 {
		b.WriteString(strings.Join(transcript, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// Complete sends the turns to the provider and returns the extracted reply.
// apiKeyOverride is used only when no key is configured server-side.
func (c *Client) Complete(ctx context.Context, turns []Turn, apiKeyOverride string) (*Result, error) {
	body := map[string]string{
		"prompt": BuildPrompt(turns),
	}
	if c.cfg.Model != "" {
		body["model"] = c.cfg.Model
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	apiKey := c.cfg.APIKey
	if apiKey == "" {
		apiKey = apiKeyOverride
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	// Unknown shapes yield an empty reply plus the raw payload; the caller
	// gets the evidence rather than a fabricated answer.
	return &Result{Reply: ExtractReply(raw), Raw: raw}, nil
}
