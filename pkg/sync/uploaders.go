package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"golang.org/x/oauth2"

	"voicenotes/pkg/blob"
	"voicenotes/pkg/domain"
	"voicenotes/pkg/httpclient"
)

// BackendUploader delivers artifacts to the companion backend's /upload
// endpoint, which relays them to cloud storage with its own credentials.
type BackendUploader struct {
	baseURL  string
	folderID string
	client   *httpclient.HTTPClient
}

// NewBackendUploader targets the /upload endpoint at baseURL. folderID names
// the destination folder on the backend's storage and may be empty.
func NewBackendUploader(baseURL, folderID string) *BackendUploader {
	return &BackendUploader{
		baseURL:  baseURL,
		folderID: folderID,
		client:   httpclient.NewClient(),
	}
}

// Upload posts the artifact as multipart form data.
func (u *BackendUploader) Upload(ctx context.Context, task domain.UploadTask) error {
	path, err := blob.PathFromURI(task.URI)
	if err != nil {
		return err
	}

	fields := map[string]string{
		"name": task.Name,
		"mime": task.Mime,
	}
	if u.folderID != "" {
		fields["folderId"] = u.folderID
	}

	resp, err := u.client.PostFile(u.baseURL+"/upload", path, fields)
	if err != nil {
		return &domain.TransportError{Op: "upload " + task.Name, Err: err}
	}
	defer resp.Body.Close()

	body := httpclient.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return &domain.TransportError{
			Op:     "upload " + task.Name,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("backend returned %d: %s", resp.StatusCode, body),
		}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return &domain.TransportError{Op: "upload " + task.Name, Status: resp.StatusCode, Err: err}
	}
	return nil
}

const driveUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"

// DriveUploader pushes artifacts straight to Google Drive using the caller's
// OAuth credentials. The token source is consulted on every attempt so a
// token that expired during backoff is refreshed instead of replayed.
type DriveUploader struct {
	tokens   oauth2.TokenSource
	folderID string
	client   *http.Client

	// uploadURL is overridable in tests.
	uploadURL string
}

// NewDriveUploader uploads into the Drive folder folderID using tokens for
// authentication.
func NewDriveUploader(tokens oauth2.TokenSource, folderID string) *DriveUploader {
	return &DriveUploader{
		tokens:    tokens,
		folderID:  folderID,
		client:    http.DefaultClient,
		uploadURL: driveUploadURL,
	}
}

// NewDriveUploaderForTests allows injecting the HTTP client and endpoint.
func NewDriveUploaderForTests(tokens oauth2.TokenSource, folderID, uploadURL string, client *http.Client) *DriveUploader {
	return &DriveUploader{
		tokens:    tokens,
		folderID:  folderID,
		client:    client,
		uploadURL: uploadURL,
	}
}

// Upload performs a multipart/related upload: a JSON metadata part naming
// the file and parent folder, then the media bytes.
func (u *DriveUploader) Upload(ctx context.Context, task domain.UploadTask) error {
	_, err := u.UploadWithID(ctx, task)
	return err
}

// UploadWithID is Upload, returning the remote file id Drive assigned.
func (u *DriveUploader) UploadWithID(ctx context.Context, task domain.UploadTask) (string, error) {
	tok, err := u.tokens.Token()
	if err != nil {
		return "", &domain.TransportError{Op: "drive token", Err: err}
	}

	file, err := blob.Open(task.URI)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("create metadata part: %w", err)
	}
	meta := map[string]any{
		"name":     task.Name,
		"mimeType": task.Mime,
	}
	if u.folderID != "" {
		meta["parents"] = []string{u.folderID}
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", task.Mime)
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return "", fmt.Errorf("create media part: %w", err)
	}
	if _, err := io.Copy(mediaPart, file); err != nil {
		return "", fmt.Errorf("read artifact %s: %w", task.Name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("create drive request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &domain.TransportError{Op: "drive upload " + task.Name, Err: err}
	}
	defer resp.Body.Close()

	respBody := httpclient.ReadBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", &domain.TransportError{
			Op:     "drive upload " + task.Name,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("drive returned %d: %s", resp.StatusCode, respBody),
		}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(respBody), &out); err != nil {
		return "", &domain.TransportError{Op: "drive upload " + task.Name, Status: resp.StatusCode, Err: err}
	}
	return out.ID, nil
}
