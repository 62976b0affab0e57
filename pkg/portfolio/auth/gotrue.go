package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// GoTrue verifies credentials with a password grant against a GoTrue
// (Supabase Auth) server. The issued tokens are discarded.
type GoTrue struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ portfolio.Authenticator = (*GoTrue)(nil)

// NewGoTrue creates an authenticator for the project at baseURL.
func NewGoTrue(baseURL, apiKey string, client *http.Client) (*GoTrue, error) {
	if baseURL == "" {
		return nil, errors.New("identity provider URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &GoTrue{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, client: client}, nil
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

func (g *GoTrue) Verify(ctx context.Context, identifier, credential string) error {
	body, err := json.Marshal(passwordGrant{Email: identifier, Password: credential})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("apikey", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var ge gotrueError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&ge)
	reason := ge.ErrorDescription
	if reason == "" {
		reason = ge.Message
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return &portfolio.AuthError{Identifier: identifier, Reason: reason}
	}
	if reason == "" {
		reason = resp.Status
	}
	return fmt.Errorf("identity provider error: %s", reason)
}
