package oauth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/heronworks/authcore/internal/auth/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHub normalizes GitHub profiles. GitHub hides the email on the profile
// when the user marks it private, so the emails endpoint is the fallback.
type GitHub struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	EmailsURL    string
}

func NewGitHub(clientID, clientSecret string) *GitHub {
	return &GitHub{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     github.Endpoint,
		UserInfoURL:  githubUserURL,
		EmailsURL:    githubEmailsURL,
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) GetUserInfo(ctx context.Context, code, redirectURI string) (*domain.SocialIdentity, error) {
	token, err := exchangeCode(ctx, oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     g.Endpoint,
		Scopes:       []string{"read:user", "user:email"},
	}, code, redirectURI)
	if err != nil || token == nil {
		return nil, err
	}

	var profile struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := fetchJSON(ctx, token, g.UserInfoURL, &profile); err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, fmt.Errorf("oauth: github userinfo missing id")
	}

	email := profile.Email
	if email == "" {
		email, err = g.primaryEmail(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	first, last := splitName(profile.Name)

	return &domain.SocialIdentity{
		ProviderUserID: strconv.FormatInt(profile.ID, 10),
		Email:          email,
		FirstName:      first,
		LastName:       last,
		AvatarURL:      profile.AvatarURL,
		Provider:       g.Name(),
	}, nil
}

func (g *GitHub) primaryEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := fetchJSON(ctx, token, g.EmailsURL, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}
