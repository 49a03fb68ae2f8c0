// Package remote implements the adapter for the external classification
// service: a single JSON POST per event, bounded by a fixed timeout.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of the response body is read; the
// expected payload is a few hundred bytes at most.
const maxResponseBytes = 1 << 20

// HTTPClassifier is an implementation of the RemoteClassifier interface
// that talks to a configurable HTTP endpoint. Every call is independent:
// a failed or timed-out request leaves no state behind, so retrying
// against an unreachable endpoint is always safe.
type HTTPClassifier struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	logger   *zap.Logger
}

// classifyResponse is the wire shape of the remote service's answer.
// Every field is optional on the wire; missing fields decode to their
// zero values and are defaulted explicitly below.
type classifyResponse struct {
	Purpose    string  `json:"purpose"`
	Topic      string  `json:"topic"`
	SenderType string  `json:"sender_type"`
	Confidence float64 `json:"confidence"`
}

// NewHTTPClassifier creates a new HTTP remote classifier.
func NewHTTPClassifier(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClassifier{
		client:   &http.Client{},
		endpoint: endpoint,
		timeout:  timeout,
		logger:   logger,
	}
}

// Classify sends the full event payload to the remote service and parses
// the result. The request is abandoned once the timeout elapses; the
// transport-level abort is best effort.
func (c *HTTPClassifier) Classify(ctx context.Context, event *core.Event) (*core.RemoteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detection event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classify request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read classify response: %w", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classify response: %w", err)
	}

	// An absent or unknown purpose makes the response unusable; treat it
	// like any other remote failure so the caller falls back to rules.
	purpose, ok := core.ParseCategory(parsed.Purpose)
	if !ok {
		return nil, fmt.Errorf("classify response has unusable purpose %q", parsed.Purpose)
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	c.logger.Debug("Remote classification succeeded",
		zap.String("sender", event.Sender),
		zap.String("purpose", string(purpose)),
		zap.Float64("confidence", confidence))

	return &core.RemoteResult{
		Purpose:    purpose,
		Topic:      parsed.Topic,
		SenderType: parsed.SenderType,
		Confidence: confidence,
	}, nil
}
