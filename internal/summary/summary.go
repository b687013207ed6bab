// Package summary produces the short summary stored with each ingested document.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// Summarizer condenses document text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// maxInput caps the text sent to a remote model.
const maxInput = 20000

// HTTP calls a summarization model served over HTTP.
type HTTP struct {
	url        string
	httpClient *http.Client
}

// NewHTTP creates a summarizer that posts to url.
func NewHTTP(url string, httpClient *http.Client) *HTTP {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTP{url: url, httpClient: httpClient}
}

func (h *HTTP) Summarize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": truncate(text, maxInput)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: summarizer: %w", errs.ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: summarizer status %d", errs.ErrRemote, resp.StatusCode)
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: summarizer decode: %v", errs.ErrRemote, err)
	}
	return strings.TrimSpace(out.Summary), nil
}

// Lead summarizes by keeping the leading sentences of the text.
type Lead struct {
	MaxChars int
}

// NewLead creates a lead-sentence summarizer capped at 600 characters.
func NewLead() *Lead { return &Lead{MaxChars: 600} }

func (l *Lead) Summarize(_ context.Context, text string) (string, error) {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= l.MaxChars {
		return text, nil
	}

	var b strings.Builder
	for _, s := range sentences(text) {
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(s)+1 > l.MaxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	if b.Len() == 0 {
		// First sentence alone is too long.
		return truncate(text, l.MaxChars-1) + "…", nil
	}
	return b.String(), nil
}

// sentences splits on ". ", "! " and "? ".
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				out = append(out, text[start:i+1])
				start = i + 2
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Fallback tries Primary and uses Secondary when it fails.
type Fallback struct {
	Primary   Summarizer
	Secondary Summarizer
	OnError   func(error)
}

func (f *Fallback) Summarize(ctx context.Context, text string) (string, error) {
	s, err := f.Primary.Summarize(ctx, text)
	if err == nil && s != "" {
		return s, nil
	}
	if err != nil && f.OnError != nil {
		f.OnError(err)
	}
	return f.Secondary.Summarize(ctx, text)
}
