package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/voicewire/voicewire/pkg/core"
)

// CredentialSource produces a short-lived client secret used to
// authenticate a realtime connection.
type CredentialSource interface {
	Fetch(ctx context.Context) (string, error)
}

// CredentialClient fetches an ephemeral client secret from a backend
// token endpoint. The backend holds the long-lived API key; clients
// only ever see the minted secret.
type CredentialClient struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8080".
	// The secret is requested from BaseURL + "/session".
	BaseURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type sessionCredentialResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// Fetch requests a fresh client secret. Any failure, including a
// well-formed response with no secret in it, is a credential error.
func (c *CredentialClient) Fetch(ctx context.Context) (string, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	url := c.BaseURL + "/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", core.NewCredentialError(fmt.Sprintf("build session request: %v", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", core.NewCredentialError(fmt.Sprintf("request session credential: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", core.NewCredentialError(fmt.Sprintf("session endpoint returned %d: %s", resp.StatusCode, body))
	}

	var parsed sessionCredentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", core.NewCredentialError(fmt.Sprintf("decode session response: %v", err))
	}
	if parsed.ClientSecret.Value == "" {
		return "", core.NewCredentialError("session response has no client secret")
	}

	if c.Logger != nil {
		c.Logger.Debug("fetched session credential", "endpoint", url)
	}
	return parsed.ClientSecret.Value, nil
}
