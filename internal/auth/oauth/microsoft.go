package oauth

import (
	"context"
	"fmt"

	"github.com/heronworks/authcore/internal/auth/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const microsoftGraphMeURL = "https://graph.microsoft.com/v1.0/me"

// Microsoft normalizes Microsoft Graph profiles. Graph has no guaranteed
// mail field; userPrincipalName stands in when mail is absent.
type Microsoft struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

func NewMicrosoft(clientID, clientSecret string) *Microsoft {
	return &Microsoft{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     microsoft.AzureADEndpoint("common"),
		UserInfoURL:  microsoftGraphMeURL,
	}
}

func (m *Microsoft) Name() string { return "microsoft" }

func (m *Microsoft) GetUserInfo(ctx context.Context, code, redirectURI string) (*domain.SocialIdentity, error) {
	token, err := exchangeCode(ctx, oauth2.Config{
		ClientID:     m.ClientID,
		ClientSecret: m.ClientSecret,
		Endpoint:     m.Endpoint,
		Scopes:       []string{"openid", "email", "profile", "User.Read"},
	}, code, redirectURI)
	if err != nil || token == nil {
		return nil, err
	}

	var profile struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		GivenName         string `json:"givenName"`
		Surname           string `json:"surname"`
	}
	if err := fetchJSON(ctx, token, m.UserInfoURL, &profile); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("oauth: microsoft userinfo missing id")
	}

	email := profile.Mail
	if email == "" {
		email = profile.UserPrincipalName
	}

	return &domain.SocialIdentity{
		ProviderUserID: profile.ID,
		Email:          email,
		FirstName:      profile.GivenName,
		LastName:       profile.Surname,
		AvatarURL:      "", // Graph photos need a separate binary endpoint
		Provider:       m.Name(),
	}, nil
}
