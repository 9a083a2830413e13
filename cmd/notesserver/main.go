package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"voicenotes/pkg/segment"
	"voicenotes/pkg/server"
	"voicenotes/pkg/summarize"
	"voicenotes/pkg/sync"
	"voicenotes/pkg/transcribe"
)

func main() {
	var (
		addr = flag.String("addr", ":8080", "Listen address")

		openaiBase = flag.String("openai-base", "https://api.openai.com", "OpenAI-compatible API base URL")
		openaiKey  = flag.String("openai-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
		model      = flag.String("model", "whisper-1", "Transcription model")

		deepseekBase = flag.String("deepseek-base", "https://api.deepseek.com", "Summarization API base URL")
		deepseekKey  = flag.String("deepseek-key", os.Getenv("DEEPSEEK_API_KEY"), "Summarization API key (empty disables summarization)")
		chatModel    = flag.String("chat-model", "deepseek-chat", "Summarization model")

		clientID     = flag.String("google-client-id", os.Getenv("GOOGLE_CLIENT_ID"), "Google OAuth client id (empty disables Drive uploads)")
		clientSecret = flag.String("google-client-secret", os.Getenv("GOOGLE_CLIENT_SECRET"), "Google OAuth client secret")
		redirectURL  = flag.String("google-redirect", "http://localhost:8080/oauth2callback", "OAuth redirect URL")
		tokenPath    = flag.String("token-file", "token.json", "Path for the stored OAuth token")
		driveFolder  = flag.String("drive-folder", "", "Drive folder id for uploaded artifacts")
	)
	flag.Parse()

	if *openaiKey == "" {
		log.Fatal("-openai-key is required")
	}

	cfg := server.Config{
		Segmenter:   segment.NewSegmenter(),
		Transcriber: transcribe.NewClient(transcribe.NewOpenAIProvider(*openaiBase, *openaiKey, *model)),
	}

	if *deepseekKey != "" {
		cfg.Summarizer = summarize.NewClient(*deepseekBase, *deepseekKey, *chatModel)
	}

	if *clientID != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     *clientID,
			ClientSecret: *clientSecret,
			RedirectURL:  *redirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/drive.file"},
			Endpoint:     google.Endpoint,
		}
		auth := server.NewAuthenticator(oauthCfg, *tokenPath)
		cfg.Auth = auth

		// Uploads only work once the consent flow stored a token; until then
		// /upload reports the missing token per request.
		tokens, err := auth.TokenSource(context.Background())
		if err != nil {
			log.Printf("Drive uploads not ready yet: %v", err)
			cfg.Remote = sync.NewDriveUploader(deferredTokenSource{auth}, *driveFolder)
		} else {
			cfg.Remote = sync.NewDriveUploader(tokens, *driveFolder)
		}
	}

	srv := server.New(cfg)
	log.Printf("Listening on %s", *addr)
	if err := http.ListenAndServe(*addr, srv.Routes()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// deferredTokenSource retries loading the stored token on every call, so the
// server picks up a token minted after startup without a restart.
type deferredTokenSource struct {
	auth *server.Authenticator
}

func (d deferredTokenSource) Token() (*oauth2.Token, error) {
	ts, err := d.auth.TokenSource(context.Background())
	if err != nil {
		return nil, err
	}
	return ts.Token()
}
