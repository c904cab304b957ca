package common

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// responseBodyLimit bounds the response body kept in ErrUnexpectedStatus.
const responseBodyLimit = 4096

// PostJSON posts body to url and drains the response. Statuses outside 2xx are returned as *ErrUnexpectedStatus.
func PostJSON(ctx context.Context, client *http.Client, url string, headers http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for name, values := range headers {
		req.Header[http.CanonicalHeaderKey(name)] = values
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ErrUnexpectedStatus{URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

type ErrUnexpectedStatus struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("POST %s responded %d: '%s'", e.URL, e.StatusCode, e.Body)
}
