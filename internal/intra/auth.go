package intra

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Authorize exchanges an authorization code from the intranet's OAuth
// login flow for a personal access token. The first registered
// application's identity is the one bound to the redirect URL.
func (c *Client) Authorize(ctx context.Context, code string) (string, error) {
	if len(c.pool.creds) == 0 {
		return "", errors.New("intra: no credentials registered")
	}
	grant := c.pool.creds[0].grant

	conf := &oauth2.Config{
		ClientID:     grant.ClientID,
		ClientSecret: grant.ClientSecret,
		RedirectURL:  c.redirectURL,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.authURL,
		},
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("intra: authorization code exchange: %w", err)
	}
	return tok.AccessToken, nil
}
