package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider serves a token endpoint and userinfo endpoints from one test
// server. Codes other than goodCode are rejected the way real providers do,
// with a 400 and an OAuth error body.
const goodCode = "valid-code"

func fakeProviderServer(t *testing.T, userinfo map[string]any, extra map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("code") != goodCode {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer provider-access-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userinfo)
	})
	for path, h := range extra {
		mux.HandleFunc(path, h)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testEndpoint(srv *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  srv.URL + "/authorize",
		TokenURL: srv.URL + "/token",
	}
}

func TestGoogleGetUserInfo(t *testing.T) {
	srv := fakeProviderServer(t, map[string]any{
		"id":          "g-001",
		"email":       "alice@example.com",
		"given_name":  "Alice",
		"family_name": "Smith",
		"picture":     "https://img.example/a.png",
	}, nil)

	g := NewGoogle("client-id", "client-secret")
	g.Endpoint = testEndpoint(srv)
	g.UserInfoURL = srv.URL + "/userinfo"

	t.Run("valid code yields a normalized identity", func(t *testing.T) {
		identity, err := g.GetUserInfo(context.Background(), goodCode, "https://app/callback")
		require.NoError(t, err)
		require.NotNil(t, identity)
		require.Equal(t, "g-001", identity.ProviderUserID)
		require.Equal(t, "alice@example.com", identity.Email)
		require.Equal(t, "Alice", identity.FirstName)
		require.Equal(t, "Smith", identity.LastName)
		require.Equal(t, "google", identity.Provider)
	})

	t.Run("rejected code is not a fault", func(t *testing.T) {
		identity, err := g.GetUserInfo(context.Background(), "expired-code", "https://app/callback")
		require.NoError(t, err)
		require.Nil(t, identity)
	})
}

func TestGitHubGetUserInfo(t *testing.T) {
	t.Run("public email on the profile", func(t *testing.T) {
		srv := fakeProviderServer(t, map[string]any{
			"id":         int64(42),
			"login":      "bob",
			"name":       "Bob The Builder",
			"email":      "bob@example.com",
			"avatar_url": "https://img.example/b.png",
		}, nil)

		g := NewGitHub("client-id", "client-secret")
		g.Endpoint = testEndpoint(srv)
		g.UserInfoURL = srv.URL + "/userinfo"
		g.EmailsURL = srv.URL + "/emails"

		identity, err := g.GetUserInfo(context.Background(), goodCode, "https://app/callback")
		require.NoError(t, err)
		require.Equal(t, "42", identity.ProviderUserID)
		require.Equal(t, "bob@example.com", identity.Email)
		require.Equal(t, "Bob", identity.FirstName)
		require.Equal(t, "The Builder", identity.LastName)
	})

	t.Run("private email falls back to the emails endpoint", func(t *testing.T) {
		emails := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"email": "old@example.com", "primary": false, "verified": true},
				{"email": "carol@example.com", "primary": true, "verified": true},
			})
		}
		srv := fakeProviderServer(t, map[string]any{
			"id":    int64(7),
			"login": "carol",
			"name":  "Carol",
		}, map[string]http.HandlerFunc{"/emails": emails})

		g := NewGitHub("client-id", "client-secret")
		g.Endpoint = testEndpoint(srv)
		g.UserInfoURL = srv.URL + "/userinfo"
		g.EmailsURL = srv.URL + "/emails"

		identity, err := g.GetUserInfo(context.Background(), goodCode, "https://app/callback")
		require.NoError(t, err)
		require.Equal(t, "carol@example.com", identity.Email, "primary verified email wins")
	})
}

func TestMicrosoftGetUserInfo(t *testing.T) {
	srv := fakeProviderServer(t, map[string]any{
		"id":                "ms-001",
		"mail":              "",
		"userPrincipalName": "dave@contoso.com",
		"givenName":         "Dave",
		"surname":           "Jones",
	}, nil)

	m := NewMicrosoft("client-id", "client-secret")
	m.Endpoint = testEndpoint(srv)
	m.UserInfoURL = srv.URL + "/userinfo"

	identity, err := m.GetUserInfo(context.Background(), goodCode, "https://app/callback")
	require.NoError(t, err)
	require.Equal(t, "ms-001", identity.ProviderUserID)
	require.Equal(t, "dave@contoso.com", identity.Email, "falls back to the principal name")
	require.Equal(t, "Dave", identity.FirstName)
}

func TestExchangerRouting(t *testing.T) {
	srv := fakeProviderServer(t, map[string]any{
		"id":    "g-002",
		"email": "erin@example.com",
	}, nil)

	g := NewGoogle("client-id", "client-secret")
	g.Endpoint = testEndpoint(srv)
	g.UserInfoURL = srv.URL + "/userinfo"

	ex := NewExchanger(g)

	t.Run("provider names are case-insensitive", func(t *testing.T) {
		identity, err := ex.GetUserInfo(context.Background(), "Google", goodCode, "https://app/callback")
		require.NoError(t, err)
		require.NotNil(t, identity)
		require.Equal(t, "g-002", identity.ProviderUserID)
	})

	t.Run("unknown provider is an authentication outcome", func(t *testing.T) {
		identity, err := ex.GetUserInfo(context.Background(), "myspace", goodCode, "https://app/callback")
		require.NoError(t, err)
		require.Nil(t, identity)
	})
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"", "", ""},
		{"Cher", "Cher", ""},
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Mary Jane van Dyk", "Mary", "Jane van Dyk"},
		{"  padded  ", "padded", ""},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		require.Equal(t, tt.first, first, "input %q", tt.in)
		require.Equal(t, tt.last, last, "input %q", tt.in)
	}
}
