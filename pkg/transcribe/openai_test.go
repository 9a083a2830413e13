package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voicenotes/pkg/domain"
)

func TestOpenAIProvider_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("Expected model field, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "direct text"})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "whisper-1")
	res, err := p.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "direct text" {
		t.Errorf("Expected inline text, got %q", res.Text)
	}
	if res.Source != "openai:whisper-1" {
		t.Errorf("Expected tagged source, got %q", res.Source)
	}
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "whisper-1")
	_, err := p.Transcribe(context.Background(), writeChunk(t))

	var transport *domain.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if transport.Status != http.StatusTooManyRequests {
		t.Errorf("Expected 429 status, got %d", transport.Status)
	}
}
