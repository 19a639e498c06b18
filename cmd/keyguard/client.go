package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// apiError is a non-2xx response from the daemon.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

func apiClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: 2 * time.Minute, // reads may wait on a user prompt
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
	}
}

func apiGet(socketPath, path string, v any) error {
	return apiDo(socketPath, http.MethodGet, path, nil, v)
}

// apiDo sends body as JSON and decodes the response into v when v is not
// nil and the response has a body.
func apiDo(socketPath, method, path string, body, v any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, "http://keyguard"+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient(socketPath).Do(req)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w (is keyguard daemon running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &apiError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
