package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// Authenticator runs the one-time OAuth consent flow for the remote storage
// account and persists the resulting token next to the server.
type Authenticator struct {
	cfg       *oauth2.Config
	tokenPath string
}

// NewAuthenticator wires an OAuth config to a token file path.
func NewAuthenticator(cfg *oauth2.Config, tokenPath string) *Authenticator {
	return &Authenticator{cfg: cfg, tokenPath: tokenPath}
}

// TokenSource returns a refreshing token source backed by the stored token.
// It fails until the consent flow has been completed once.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read stored token (run /auth/start first): %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse stored token: %w", err)
	}
	return a.cfg.TokenSource(ctx, &tok), nil
}

// saveToken persists the exchanged token for later TokenSource calls.
func (a *Authenticator) saveToken(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(a.tokenPath, raw, 0o600); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// handleAuthStart redirects the operator's browser into the consent flow.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("oauth is not configured"))
		return
	}
	url := s.cfg.Auth.cfg.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusFound)
}

// handleOAuthCallback exchanges the consent code and stores the token.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("oauth is not configured"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing code parameter"))
		return
	}

	tok, err := s.cfg.Auth.cfg.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("exchange code: %w", err))
		return
	}
	if err := s.cfg.Auth.saveToken(tok); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "authorization complete, you can close this tab"})
}
