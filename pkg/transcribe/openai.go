package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/httpclient"
)

// OpenAIProvider submits chunks directly to an OpenAI-compatible
// audio.transcriptions endpoint.
type OpenAIProvider struct {
	baseURL string
	model   string
	client  *httpclient.HTTPClient
}

// NewOpenAIProvider creates a direct speech-to-text provider. baseURL is the
// API root, e.g. "https://api.openai.com".
func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  httpclient.NewClientWithBearer(apiKey),
	}
}

type openAIResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one chunk and returns the inline text. The result is
// tagged "openai:<model>" so the session records which path produced it.
func (p *OpenAIProvider) Transcribe(ctx context.Context, chunkPath string) (Result, error) {
	url := p.baseURL + "/v1/audio/transcriptions"
	resp, err := p.client.PostFile(url, chunkPath, map[string]string{"model": p.model})
	if err != nil {
		return Result{}, &domain.TransportError{Op: "transcribe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpclient.ReadBody(resp)
		return Result{}, &domain.TransportError{
			Op:     "transcribe",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(body)),
		}
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, &domain.TransportError{Op: "transcribe", Err: fmt.Errorf("decode response: %w", err)}
	}
	return Result{Text: out.Text, Source: "openai:" + p.model}, nil
}
