package oauth2

import (
	"os"
	"strings"

	"github.com/panyam/authlink"
	"golang.org/x/oauth2/github"
)

const githubUserInfoURL = "https://api.github.com/user"

// GitHub returns a provider for GitHub sign-in.
// Empty credentials are read from OAUTH2_GITHUB_CLIENT_ID / OAUTH2_GITHUB_CLIENT_SECRET.
func GitHub(clientId, clientSecret string) *authlink.Provider {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	return &authlink.Provider{
		ID:            "github",
		Name:          "GitHub",
		Type:          authlink.ProviderTypeOAuth,
		Capabilities:  authlink.NewCapabilitySet(authlink.CapabilityState),
		ClientID:      clientId,
		ClientSecret:  clientSecret,
		Scopes:        []string{"read:user", "user:email"},
		AuthURL:       github.Endpoint.AuthURL,
		TokenURL:      github.Endpoint.TokenURL,
		UserInfoURL:   githubUserInfoURL,
		ProfileMapper: githubProfile,
	}
}

func githubProfile(raw map[string]any) (*authlink.OAuthProfile, error) {
	profile, err := DefaultProfile(raw)
	if err != nil {
		return nil, err
	}
	if profile.Name == "" {
		profile.Name = stringField(raw, "login")
	}
	profile.Image = stringField(raw, "avatar_url")
	return profile, nil
}
