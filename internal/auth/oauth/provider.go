// Package oauth exchanges provider authorization codes for normalized
// identity records. The exchange happens server-side only; provider access
// tokens never leave this package.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/pkg/slogx"

	"golang.org/x/oauth2"
)

// Provider performs the code exchange and userinfo fetch for one upstream
// identity provider, normalizing the result.
type Provider interface {
	Name() string

	// GetUserInfo returns (nil, nil) when the code is invalid, expired, or
	// rejected upstream; that is an authentication outcome, not a fault.
	GetUserInfo(ctx context.Context, code, redirectURI string) (*domain.SocialIdentity, error)
}

// Exchanger routes exchange requests to the registered provider.
type Exchanger struct {
	providers map[string]Provider
}

func NewExchanger(providers ...Provider) *Exchanger {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[strings.ToLower(p.Name())] = p
	}
	return &Exchanger{providers: m}
}

// GetUserInfo resolves the provider by name (case-insensitive) and runs the
// exchange. An unknown provider is an authentication outcome, not a fault.
func (e *Exchanger) GetUserInfo(ctx context.Context, provider, code, redirectURI string) (*domain.SocialIdentity, error) {
	p, ok := e.providers[strings.ToLower(provider)]
	if !ok {
		slogx.FromContext(ctx).Info("social login with unknown provider",
			slog.String("provider", provider))
		return nil, nil
	}
	return p.GetUserInfo(ctx, code, redirectURI)
}

// exchangeCode runs the authorization-code grant. A provider-side rejection
// (non-2xx token response, typically an invalid or expired code) comes back
// as (nil, nil); transport failures are real errors.
func exchangeCode(ctx context.Context, cfg oauth2.Config, code, redirectURI string) (*oauth2.Token, error) {
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			slogx.FromContext(ctx).Info("authorization code rejected",
				slog.Int("status", retrieveErr.Response.StatusCode))
			return nil, nil
		}
		return nil, fmt.Errorf("oauth: code exchange: %w", err)
	}
	return token, nil
}

// fetchJSON GETs url with the provider access token and decodes the body.
func fetchJSON(ctx context.Context, token *oauth2.Token, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("oauth: userinfo fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("oauth: userinfo fetch: status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// splitName breaks a display name into first/last on the first space.
func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	first, last, found := strings.Cut(name, " ")
	if !found {
		return name, ""
	}
	return first, strings.TrimSpace(last)
}
