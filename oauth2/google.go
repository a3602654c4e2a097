package oauth2

import (
	"os"
	"strings"

	"github.com/panyam/authlink"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Google returns a provider for Google sign-in.
// Empty credentials are read from OAUTH2_GOOGLE_CLIENT_ID / OAUTH2_GOOGLE_CLIENT_SECRET.
func Google(clientId, clientSecret string) *authlink.Provider {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET"))
	}
	return &authlink.Provider{
		ID:           "google",
		Name:         "Google",
		Type:         authlink.ProviderTypeOAuth,
		Capabilities: authlink.NewCapabilitySet(authlink.CapabilityState, authlink.CapabilityPKCE),
		ClientID:     clientId,
		ClientSecret: clientSecret,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		AuthURL:       google.Endpoint.AuthURL,
		TokenURL:      google.Endpoint.TokenURL,
		UserInfoURL:   googleUserInfoURL,
		ProfileMapper: googleProfile,
	}
}

func googleProfile(raw map[string]any) (*authlink.OAuthProfile, error) {
	profile, err := DefaultProfile(raw)
	if err != nil {
		return nil, err
	}
	// only trust verified addresses
	if verified, ok := raw["verified_email"].(bool); ok && !verified {
		profile.Email = ""
	}
	return profile, nil
}
