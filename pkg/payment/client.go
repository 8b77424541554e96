package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// apiClient is the JSON-over-HTTP plumbing shared by the adapters.
type apiClient struct {
	provider string
	baseURL  string
	http     *http.Client
	log      *zap.Logger
}

func newAPIClient(provider, baseURL string, timeout time.Duration, log *zap.Logger) apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return apiClient{
		provider: provider,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		log:      log.With(zap.String("provider", provider)),
	}
}

// do sends in as JSON (when non-nil) and returns the status code and raw body.
// Non-2xx responses are not errors here; callers classify them.
func (c apiClient) do(ctx context.Context, method, path string, header http.Header, in interface{}) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("provider request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	c.log.Debug("provider response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))
	return resp.StatusCode, respBody, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
