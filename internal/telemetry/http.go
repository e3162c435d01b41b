// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxAckBytes bounds how much of a reply body is read.
const maxAckBytes = 64 * 1024

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSink POSTs batches as JSON and decodes the reply as an Ack.
type HTTPSink struct {
	URL       string
	Token     string // bearer token, optional
	SessionID string // sent as X-Session-ID, optional
	Client    Doer
}

// NewHTTPSink returns a sink posting to url with http.DefaultClient.
func NewHTTPSink(url, token, sessionID string) *HTTPSink {
	return &HTTPSink{URL: url, Token: token, SessionID: sessionID, Client: http.DefaultClient}
}

func (s *HTTPSink) Submit(ctx context.Context, b Batch) (Ack, error) {
	body, err := json.Marshal(b.Payload())
	if err != nil {
		return Ack{}, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("%w: build request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	if s.SessionID != "" {
		req.Header.Set("X-Session-ID", s.SessionID)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAckBytes))
	if err != nil {
		return Ack{}, fmt.Errorf("%w: read reply: %v", ErrDelivery, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Ack{}, fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, bytes.TrimSpace(data))
	}

	var ack Ack
	if len(bytes.TrimSpace(data)) == 0 {
		return ack, nil
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return Ack{}, fmt.Errorf("%w: decode reply: %v", ErrDelivery, err)
	}
	return ack, nil
}
