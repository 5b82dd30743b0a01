package intra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Credential is one OAuth client-credential identity and its current
// access token. The pool is the only component that mutates tokens.
type Credential struct {
	uid   string
	grant *clientcredentials.Config

	mu       sync.Mutex
	token    string
	lastCall time.Time
}

// UID returns the credential's client identifier.
func (c *Credential) UID() string { return c.uid }

// Token returns the credential's current access token.
func (c *Credential) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Refresh performs a client-credentials grant and replaces the current
// access token. Safe to call concurrently; the last writer wins.
func (c *Credential) Refresh(ctx context.Context) error {
	tok, err := c.grant.Token(ctx)
	if err != nil {
		return fmt.Errorf("intra: refresh token for %s: %w", c.uid, err)
	}
	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()
	return nil
}

// Pool owns a set of credentials and hands out the least-recently-used
// one for each outbound call. Last-call timestamps are the sole ordering
// key and advance exactly once per physical HTTP call, at acquire time.
type Pool struct {
	mu     sync.Mutex
	creds  []*Credential
	now    func() time.Time
	logger *slog.Logger
}

// Application is one registered OAuth application (uid + secret).
type Application struct {
	UID    string
	Secret string
}

// NewPool creates a pool for the given applications. Tokens are not
// fetched until Load is called.
func NewPool(apps []Application, tokenURL string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		now:    time.Now,
		logger: logger.With("component", "intra.pool"),
	}
	for _, app := range apps {
		p.creds = append(p.creds, &Credential{
			uid: app.UID,
			grant: &clientcredentials.Config{
				ClientID:     app.UID,
				ClientSecret: app.Secret,
				TokenURL:     tokenURL,
			},
		})
	}
	return p
}

// Load fetches an initial access token for every credential.
func (p *Pool) Load(ctx context.Context) error {
	for _, c := range p.creds {
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		p.logger.Info("credential loaded", "uid", c.uid)
	}
	return nil
}

// Len returns the number of registered credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Acquire picks the credential with the oldest last-call timestamp and
// stamps it with the current time. The stamp happens here, before the
// HTTP call, so selection reflects real load regardless of the call's
// outcome.
func (p *Pool) Acquire() *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return nil
	}

	chosen := p.creds[0]
	for _, c := range p.creds[1:] {
		c.mu.Lock()
		last := c.lastCall
		c.mu.Unlock()

		chosen.mu.Lock()
		chosenLast := chosen.lastCall
		chosen.mu.Unlock()

		if last.Before(chosenLast) {
			chosen = c
		}
	}

	chosen.mu.Lock()
	chosen.lastCall = p.now()
	chosen.mu.Unlock()
	return chosen
}

// LastCall returns the credential's last-call timestamp. Used by tests
// and the status endpoint.
func (c *Credential) LastCall() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCall
}
