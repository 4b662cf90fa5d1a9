package auth

import (
	"golang.org/x/oauth2"
)

// SSO builds authorization-code URLs for installs that sign in through the
// corporate identity provider instead of the local credential form. The code
// exchange itself happens on the remote auth service; the gateway only hands
// the browser the right place to go.
type SSO struct {
	cfg oauth2.Config
}

type SSOSettings struct {
	ClientID    string
	AuthURL     string
	TokenURL    string
	RedirectURL string
	Scopes      []string
}

func NewSSO(settings SSOSettings) *SSO {
	return &SSO{cfg: oauth2.Config{
		ClientID: settings.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  settings.AuthURL,
			TokenURL: settings.TokenURL,
		},
		RedirectURL: settings.RedirectURL,
		Scopes:      settings.Scopes,
	}}
}

func (s *SSO) Enabled() bool {
	return s != nil && s.cfg.ClientID != ""
}

func (s *SSO) LoginURL(state string) string {
	return s.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}
