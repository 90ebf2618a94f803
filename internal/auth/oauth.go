package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/amishk599/applyhook/internal/config"
)

// OAuth runs the authorization-code flow against Habr Career.
type OAuth struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuth builds the OAuth client. Credentials are sent in the token request
// body rather than as basic auth, which is what the Habr token endpoint expects.
// A nil client uses http.DefaultClient.
func NewOAuth(cfg config.OAuthConfig, client *http.Client) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

// AuthCodeURL returns the authorize URL the user is redirected to.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("exchanging authorization code: empty access token")
	}
	return tok.AccessToken, nil
}
