// Package summarize derives a title, summary, and tags from transcript text
// via a chat-completion endpoint.
//
// The model is instructed to answer with strict JSON, but model output is
// untrusted: parse failures degrade to using the raw content as the summary
// body. Only transport and auth failures are reported as errors.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/httpclient"
)

const systemPrompt = `You are a note-taking assistant. Given a transcript, produce a concise title, a detailed summary, and a few short topic tags. Answer with strict JSON only: {"title":"...","summary":"...","tags":["#topic1","#topic2"],"sections":[{"heading":"...","bullets":["..."]}]}. At most 6 tags, each short and close to the content. Output nothing else.`

// Meta is optional recording context forwarded alongside the transcript.
type Meta struct {
	StartedAt       string  `json:"started_at,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Location        string  `json:"location,omitempty"`
}

// Section is one structured bullet group of a summary.
type Section struct {
	Heading string   `json:"heading"`
	Bullets []string `json:"bullets"`
}

// Summary is the structured summarization result.
type Summary struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Tags     []string  `json:"tags"`
	Sections []Section `json:"sections,omitempty"`
}

// Client talks to a chat-completion endpoint (DeepSeek/OpenAI wire shape).
type Client struct {
	baseURL string
	model   string
	client  *httpclient.HTTPClient
}

// NewClient creates a summarization client. baseURL is the API root, e.g.
// "https://api.deepseek.com".
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  httpclient.NewClientWithBearer(apiKey),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize sends the transcript and returns the structured summary.
func (c *Client) Summarize(ctx context.Context, text string, meta *Meta) (Summary, error) {
	user := "Transcript:\n" + text
	if meta != nil {
		metaJSON, err := json.Marshal(meta)
		if err == nil {
			user += "\n\nMetadata: " + string(metaJSON)
		}
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	resp, err := c.client.PostJSON(c.baseURL+"/chat/completions", payload)
	if err != nil {
		return Summary{}, &domain.TransportError{Op: "summarize", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpclient.ReadBody(resp)
		return Summary{}, &domain.TransportError{
			Op:     "summarize",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(body)),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Summary{}, &domain.TransportError{Op: "summarize", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return Summary{}, &domain.TransportError{Op: "summarize", Err: fmt.Errorf("response has no choices")}
	}

	return parseContent(out.Choices[0].Message.Content), nil
}

// parseContent decodes the model's message content, degrading to raw text on
// malformed output.
func parseContent(content string) Summary {
	var s Summary
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &s); err != nil {
		perr := &domain.SummarizationParseError{Content: content, Err: err}
		log.Printf("Summarize: %v, using raw content as summary", perr)
		return Summary{Summary: content, Tags: []string{}}
	}
	if len(s.Tags) > 6 {
		s.Tags = s.Tags[:6]
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return s
}
