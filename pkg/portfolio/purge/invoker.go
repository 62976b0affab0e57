package purge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// Invoker calls the remote purge function once for the given group keys
// and returns its success message.
type Invoker interface {
	Invoke(ctx context.Context, groupKeys []string) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, groupKeys []string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, groupKeys []string) (string, error) {
	return f(ctx, groupKeys)
}

type invokeRequest struct {
	SectionsToDelete []string `json:"sections_to_delete"`
}

type invokeResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// DefaultSuccessMessage is reported when the function succeeds without a message.
const DefaultSuccessMessage = "Selected data deleted"

// HTTPInvoker calls a purge function deployed behind an HTTP endpoint
// (for example a Supabase edge function). Failures are decoded once into
// *portfolio.PurgeError.
type HTTPInvoker struct {
	url    string
	token  string
	client *http.Client
}

var _ Invoker = (*HTTPInvoker)(nil)

// NewHTTPInvoker creates an invoker posting to url with a bearer token.
func NewHTTPInvoker(url, token string, client *http.Client) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPInvoker{url: url, token: token, client: client}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, groupKeys []string) (string, error) {
	if h.url == "" {
		return "", &portfolio.PurgeError{Message: "purge function is not configured"}
	}

	body, err := json.Marshal(invokeRequest{SectionsToDelete: groupKeys})
	if err != nil {
		return "", &portfolio.PurgeError{Message: "failed to encode purge request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", &portfolio.PurgeError{Message: fmt.Sprintf("invalid purge function URL: %v", err), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", &portfolio.PurgeError{Message: fmt.Sprintf("failed to invoke purge function: %v", err), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out invokeResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusNotFound && out.Error == "" {
		return "", &portfolio.PurgeError{StatusCode: resp.StatusCode, Message: "purge function not found, is it deployed?"}
	}
	if out.Error != "" {
		return "", &portfolio.PurgeError{Remote: true, StatusCode: resp.StatusCode, Message: out.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &portfolio.PurgeError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("purge function returned %s", resp.Status)}
	}
	if decodeErr != nil && len(bytes.TrimSpace(raw)) > 0 {
		return "", &portfolio.PurgeError{StatusCode: resp.StatusCode, Message: "purge function returned an unreadable response", Err: decodeErr}
	}

	if out.Message == "" {
		out.Message = DefaultSuccessMessage
	}
	return out.Message, nil
}
