// Package hfauth validates the hosting platform access token once at startup.
package hfauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

const maxErrorBodyBytes = 1024

var (
	// ErrNoToken indicates that no access token was configured.
	ErrNoToken = errors.New("no access token configured")
	// ErrAuthFailed indicates that the platform rejected the access token.
	ErrAuthFailed = errors.New("access token validation failed")
)

// Identity is the account the token resolves to.
type Identity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Status is the outcome of the startup check. It never changes afterwards.
type Status struct {
	TokenPresent  bool
	Authenticated bool
	Account       string
}

// Verifier checks tokens against the platform's whoami endpoint.
type Verifier struct {
	httpClient *http.Client
	whoAmIURL  string
}

// NewVerifier creates a Verifier bounded by timeout.
func NewVerifier(whoAmIURL string, timeout time.Duration) *Verifier {
	return &Verifier{
		httpClient: &http.Client{Timeout: timeout},
		whoAmIURL:  whoAmIURL,
	}
}

// Verify resolves the token to an identity or returns an error wrapping
// ErrAuthFailed.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.whoAmIURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create whoami request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, fmt.Errorf("%w: status %s: %s", ErrAuthFailed, resp.Status, strings.TrimSpace(string(body)))
	}

	var identity Identity

	err = json.NewDecoder(resp.Body).Decode(&identity)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode whoami response: %w", ErrAuthFailed, err)
	}

	return &identity, nil
}

// Authenticate runs the one-time startup check. Failures are logged and
// degrade the relay to unauthenticated mode; they never abort startup.
func Authenticate(ctx context.Context, verifier *Verifier, token string, log *logger.Logger) Status {
	status := Status{
		TokenPresent:  strings.TrimSpace(token) != "",
		Authenticated: false,
		Account:       "",
	}

	if !status.TokenPresent {
		log.Warn("No access token provided, remote GPU quota will be limited")

		return status
	}

	identity, err := verifier.Verify(ctx, token)
	if err != nil {
		log.Error("Access token validation failed: %v", err)
		log.Warn("Relay will keep serving with a limited remote quota")

		return status
	}

	status.Authenticated = true
	status.Account = identity.Name

	log.Info("Access token validated for account %q (token length: %d)", identity.Name, len(token))

	return status
}
