package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smsbridge/smsbridge/internal/signing"
)

const signatureHeader = "X-SMS-GATEWAY-Signature"

type AttemptResult struct {
	StatusCode int
	Error      string
}

// Sender performs a single signed webhook POST. A timeout or cancellation is
// reported the same way as any other network failure.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (s *Sender) Send(ctx context.Context, url, secret string, payload []byte) *AttemptResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &AttemptResult{Error: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "smsbridge/1.0")
	req.Header.Set(signatureHeader, signing.Sign(secret, payload))

	resp, err := s.client.Do(req)
	if err != nil {
		return &AttemptResult{Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &AttemptResult{StatusCode: resp.StatusCode}
}
