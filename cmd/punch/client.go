package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"example.com/fieldpresence/internal/api"
)

// agentError is a typed failure reported by the fieldagent API.
type agentError struct {
	status int
	view   api.ErrorView
}

func (e *agentError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.view.Type, e.status, e.view.Detail)
}

func hasType(err error, typ string) bool {
	var failure *agentError
	return errors.As(err, &failure) && failure.view.Type == typ
}

type agentClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAgentClient(baseURL string, timeout time.Duration) *agentClient {
	return &agentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *agentClient) begin(ctx context.Context, kind, store string) (api.PunchView, error) {
	body, err := json.Marshal(api.BeginPunchRequest{Kind: kind, Store: store})
	if err != nil {
		return api.PunchView{}, err
	}
	return c.call(ctx, http.MethodPost, "/v1/punch", "application/json", bytes.NewReader(body))
}

func (c *agentClient) attachPhoto(ctx context.Context, path string, data []byte) (api.PunchView, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := filepath.Base(path)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, name))
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return api.PunchView{}, err
	}
	if _, err := part.Write(data); err != nil {
		return api.PunchView{}, err
	}
	if err := mw.Close(); err != nil {
		return api.PunchView{}, err
	}
	return c.call(ctx, http.MethodPut, "/v1/punch/photo", mw.FormDataContentType(), &buf)
}

func (c *agentClient) retryLocation(ctx context.Context) (api.PunchView, error) {
	return c.call(ctx, http.MethodPost, "/v1/punch/location", "", nil)
}

func (c *agentClient) submit(ctx context.Context) (api.PunchView, error) {
	return c.call(ctx, http.MethodPost, "/v1/punch/submit", "", nil)
}

func (c *agentClient) abort(ctx context.Context) (api.PunchView, error) {
	return c.call(ctx, http.MethodPost, "/v1/punch/abort", "", nil)
}

func (c *agentClient) call(ctx context.Context, method, path, contentType string, body io.Reader) (api.PunchView, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return api.PunchView{}, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return api.PunchView{}, fmt.Errorf("fieldagent unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.PunchView{}, fmt.Errorf("read %s response: %w", path, err)
	}

	var view api.PunchView
	if err := json.Unmarshal(data, &view); err != nil {
		return api.PunchView{}, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if view.Error != nil {
		return view, &agentError{status: resp.StatusCode, view: *view.Error}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return view, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return view, nil
}
