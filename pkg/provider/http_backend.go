package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// HTTPBackend is a generic HTTP/JSON Backend used for the browser-automation
// sidecar and shell-sandbox executor providers — both reached over plain
// HTTP/JSON since no generated protobuf stubs are available in this build
// (see DESIGN.md for why grpc/protobuf were dropped).
type HTTPBackend struct {
	Client  *http.Client
	BaseURL string
}

// NewHTTPBackend builds an HTTPBackend with a bounded default client
// timeout; callers should still pass a context deadline per call.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: baseURL,
	}
}

// Invoke POSTs task.Payload as the request body to BaseURL and returns the
// response body as Result.Payload.
func (b *HTTPBackend) Invoke(ctx context.Context, task Task) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL, bytes.NewReader(task.Payload))
	if err != nil {
		return Result{}, ctlerrors.WithClassification(
			ctlerrors.FailedTo("http_backend", "build request", err), ctlerrors.Permanent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return Result{}, classifyHTTPTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, ctlerrors.FailedTo("http_backend", "read response body", err)
	}

	if resp.StatusCode >= 400 {
		return Result{}, &statusCodeError{code: resp.StatusCode, body: string(body)}
	}
	return Result{Payload: body}, nil
}

type statusCodeError struct {
	code int
	body string
}

func (e *statusCodeError) Error() string  { return "http_backend: upstream returned " + http.StatusText(e.code) }
func (e *statusCodeError) StatusCode() int { return e.code }

func classifyHTTPTransportErr(err error) error {
	// Network-level failures (refused, reset, DNS) read as TRANSIENT via
	// ctlerrors.Classify's message sniffing; context errors map to TIMEOUT.
	return err
}
