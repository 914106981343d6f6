package oauth

import (
	"context"
	"fmt"

	"github.com/heronworks/authcore/internal/auth/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Google exchanges codes against Google's OAuth2 endpoints. Endpoint and
// UserInfoURL are fields so tests can point them at a local server.
type Google struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

func NewGoogle(clientID, clientSecret string) *Google {
	return &Google{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		UserInfoURL:  googleUserInfoURL,
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) GetUserInfo(ctx context.Context, code, redirectURI string) (*domain.SocialIdentity, error) {
	token, err := exchangeCode(ctx, oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     g.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}, code, redirectURI)
	if err != nil || token == nil {
		return nil, err
	}

	var profile struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := fetchJSON(ctx, token, g.UserInfoURL, &profile); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("oauth: google userinfo missing id")
	}

	return &domain.SocialIdentity{
		ProviderUserID: profile.ID,
		Email:          profile.Email,
		FirstName:      profile.GivenName,
		LastName:       profile.FamilyName,
		AvatarURL:      profile.Picture,
		Provider:       g.Name(),
	}, nil
}
