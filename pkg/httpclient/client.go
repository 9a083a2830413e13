// Package httpclient wraps net/http with the request shapes the pipeline
// clients share: JSON posts and multipart file uploads with optional bearer
// auth.
package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPClient wraps an http.Client with a bearer token and shared headers.
type HTTPClient struct {
	client *http.Client
	bearer string
}

// NewClient creates a client with a generous timeout sized for large audio
// uploads and long transcriptions.
func NewClient() *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: 60 * time.Minute},
	}
}

// NewClientWithBearer creates a client that sends "Authorization: Bearer"
// on every request.
func NewClientWithBearer(token string) *HTTPClient {
	c := NewClient()
	c.bearer = token
	return c
}

// Do executes an HTTP request with the configured auth header.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return c.client.Do(req)
}

// Get is a convenience method for GET requests.
func (c *HTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJSON marshals payload and posts it as application/json.
func (c *HTTPClient) PostJSON(url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// PostFile posts one file as multipart/form-data under the "file" field,
// with any extra form fields appended.
func (c *HTTPClient) PostFile(url, filePath string, fields map[string]string) (*http.Response, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.PostFileReader(url, filepath.Base(filePath), f, fields)
}

// PostFileReader is PostFile with the file content supplied by a reader.
func (c *HTTPClient) PostFileReader(url, fileName string, content io.Reader, fields map[string]string) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, fmt.Errorf("copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.Do(req)
}

// ReadBody drains and returns a response body, capped at 10 MiB to bound
// memory on misbehaving servers.
func ReadBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	return string(b)
}
