/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package credentials

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"chainguard.dev/repoagent/agents/agenterr"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is how close to expiry a cached credential is replaced.
const DefaultSafetyMargin = 5 * time.Minute

// DefaultExchangeTimeout bounds one token exchange.
const DefaultExchangeTimeout = 30 * time.Second

// InstallationCredential is an installation-scoped access token.
// It lives only in memory.
type InstallationCredential struct {
	InstallationID int64
	Token          string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// Usable reports whether the credential can still be used at now without
// entering the safety margin before expiry.
func (c InstallationCredential) Usable(now time.Time, margin time.Duration) bool {
	return c.Token != "" && now.Add(margin).Before(c.ExpiresAt)
}

// Exchanger trades a signed assertion for an installation credential.
type Exchanger interface {
	Exchange(ctx context.Context, installationID int64, assertion string) (InstallationCredential, error)
}

// GitHubExchanger calls the host's installation token endpoint.
type GitHubExchanger struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ Exchanger = (*GitHubExchanger)(nil)

// NewGitHubExchanger creates an exchanger. An empty baseURL uses the public API.
func NewGitHubExchanger(baseURL string, httpClient *http.Client) (*GitHubExchanger, error) {
	e := &GitHubExchanger{httpClient: httpClient}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, agenterr.New(agenterr.KindConfiguration, "github_exchanger", err)
		}
		e.baseURL = u
	}
	return e, nil
}

func (e *GitHubExchanger) Exchange(ctx context.Context, installationID int64, assertion string) (InstallationCredential, error) {
	client := github.NewClient(e.httpClient).WithAuthToken(assertion)
	if e.baseURL != nil {
		client.BaseURL = e.baseURL
	}

	issued := time.Now()
	tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return InstallationCredential{}, agenterr.New(agenterr.KindCredentialUnavailable, "exchange_token",
			fmt.Errorf("installation %d: %w", installationID, err))
	}
	if tok.GetToken() == "" {
		return InstallationCredential{}, agenterr.Newf(agenterr.KindCredentialUnavailable, "exchange_token",
			"installation %d: empty token in response", installationID)
	}
	return InstallationCredential{
		InstallationID: installationID,
		Token:          tok.GetToken(),
		IssuedAt:       issued,
		ExpiresAt:      tok.GetExpiresAt().Time,
	}, nil
}

// Provider issues installation credentials for one app. Credentials are
// cached per installation and concurrent refreshes share one exchange.
type Provider struct {
	appID     int64
	key       *rsa.PrivateKey
	exchanger Exchanger
	margin    time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[int64]InstallationCredential
	group singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider) error

// WithExchanger replaces the default GitHub exchanger.
func WithExchanger(e Exchanger) Option {
	return func(p *Provider) error {
		p.exchanger = e
		return nil
	}
}

// WithSafetyMargin sets how long before expiry a credential is refreshed.
func WithSafetyMargin(d time.Duration) Option {
	return func(p *Provider) error {
		if d < 0 {
			return fmt.Errorf("safety margin cannot be negative")
		}
		p.margin = d
		return nil
	}
}

// WithExchangeTimeout bounds each token exchange.
func WithExchangeTimeout(d time.Duration) Option {
	return func(p *Provider) error {
		if d <= 0 {
			return fmt.Errorf("exchange timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) error {
		p.now = now
		return nil
	}
}

// NewProvider creates a Provider for appID signing with key.
func NewProvider(appID int64, key *rsa.PrivateKey, opts ...Option) (*Provider, error) {
	p := &Provider{
		appID:  appID,
		key:    key,
		margin:  DefaultSafetyMargin,
		timeout: DefaultExchangeTimeout,
		now:     time.Now,
		cache:   make(map[int64]InstallationCredential),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, agenterr.New(agenterr.KindConfiguration, "credentials", err)
		}
	}
	if p.exchanger == nil {
		e, err := NewGitHubExchanger("", http.DefaultClient)
		if err != nil {
			return nil, err
		}
		p.exchanger = e
	}
	if _, err := MintAssertion(appID, key, p.now()); err != nil {
		return nil, err
	}
	return p, nil
}

// Credential returns a usable credential for installationID, exchanging a
// fresh assertion when the cached one is missing or close to expiry.
func (p *Provider) Credential(ctx context.Context, installationID int64) (InstallationCredential, error) {
	if installationID <= 0 {
		return InstallationCredential{}, agenterr.Validation("installation id must be positive")
	}
	if c, ok := p.cached(installationID); ok {
		return c, nil
	}

	// The exchange is shared, so it must outlive any one caller.
	ch := p.group.DoChan(strconv.FormatInt(installationID, 10), func() (any, error) {
		if c, ok := p.cached(installationID); ok {
			return c, nil
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		assertion, err := MintAssertion(p.appID, p.key, p.now())
		if err != nil {
			return nil, err
		}
		c, err := p.exchanger.Exchange(ctx, installationID, assertion)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[installationID] = c
		p.mu.Unlock()

		clog.FromContext(ctx).With("installation_id", installationID).
			With("expires_at", c.ExpiresAt).
			Info("Refreshed installation credential")
		return c, nil
	})

	select {
	case <-ctx.Done():
		return InstallationCredential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return InstallationCredential{}, res.Err
		}
		if res.Shared {
			clog.FromContext(ctx).With("installation_id", installationID).Debug("Shared in-flight credential refresh")
		}
		return res.Val.(InstallationCredential), nil
	}
}

// Invalidate drops the cached credential for installationID.
func (p *Provider) Invalidate(installationID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, installationID)
}

func (p *Provider) cached(installationID int64) (InstallationCredential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cache[installationID]
	if !ok || !c.Usable(p.now(), p.margin) {
		return InstallationCredential{}, false
	}
	return c, true
}

// TokenSource adapts the provider to oauth2 for one installation.
// ctx is used for every exchange the source performs.
func (p *Provider) TokenSource(ctx context.Context, installationID int64) oauth2.TokenSource {
	return &installationTokenSource{ctx: ctx, provider: p, installationID: installationID}
}

type installationTokenSource struct {
	ctx            context.Context
	provider       *Provider
	installationID int64
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	c, err := s.provider.Credential(s.ctx, s.installationID)
	if err != nil {
		return nil, err
	}
	// oauth2's reuse wrapper only checks Expiry, so the margin is applied here.
	return &oauth2.Token{AccessToken: c.Token, TokenType: "Bearer", Expiry: c.ExpiresAt.Add(-s.provider.margin)}, nil
}

// StaticTokenSource wraps a pre-resolved access token.
func StaticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}
