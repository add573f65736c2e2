// Package googleid implements [gradauth.IdentityVerifier] against Google's
// tokeninfo endpoint. The ID token is handed over opaquely; only the asserted
// email and its verified flag are extracted.
package googleid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gradauth "github.com/MrEthical07/gradauth"
)

const defaultEndpoint = "https://oauth2.googleapis.com/tokeninfo"

var (
	// ErrAssertionRejected is an exported constant or variable used by the authentication engine.
	ErrAssertionRejected = errors.New("google id token rejected")
	// ErrAudienceMismatch is an exported constant or variable used by the authentication engine.
	ErrAudienceMismatch = errors.New("google id token audience mismatch")
)

// Config defines a public type used by gradauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// ClientID must match the token's aud claim. Required.
	ClientID string
	// Endpoint overrides the tokeninfo URL. Tests point this at a local server.
	Endpoint string
	// HTTPClient overrides the default client with its 5s timeout.
	HTTPClient *http.Client
}

// Verifier defines a public type used by gradauth APIs.
//
// Verifier instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Verifier struct {
	clientID string
	endpoint string
	client   *http.Client
}

// NewVerifier describes the newverifier operation and its observable behavior.
//
// NewVerifier may return an error when input validation, dependency calls, or security checks fail.
// NewVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google client ID required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &Verifier{
		clientID: cfg.ClientID,
		endpoint: endpoint,
		client:   client,
	}, nil
}

type tokeninfoResponse struct {
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (v *Verifier) Verify(ctx context.Context, assertion string) (gradauth.Identity, error) {
	if assertion == "" {
		return gradauth.Identity{}, ErrAssertionRejected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		v.endpoint+"?id_token="+url.QueryEscape(assertion), nil)
	if err != nil {
		return gradauth.Identity{}, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return gradauth.Identity{}, fmt.Errorf("%w: %v", ErrAssertionRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gradauth.Identity{}, ErrAssertionRejected
	}

	var info tokeninfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return gradauth.Identity{}, fmt.Errorf("%w: %v", ErrAssertionRejected, err)
	}

	if info.Aud != v.clientID {
		return gradauth.Identity{}, ErrAudienceMismatch
	}
	if info.Email == "" {
		return gradauth.Identity{}, ErrAssertionRejected
	}

	return gradauth.Identity{
		Email:         info.Email,
		Name:          info.Name,
		EmailVerified: info.EmailVerified == "true",
	}, nil
}
