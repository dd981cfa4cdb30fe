/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command repoagent serves the repository agent over HTTP and answers
// GitHub App webhooks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/repoagent/agents/evals"
	"chainguard.dev/repoagent/agents/executor/retry"
	"chainguard.dev/repoagent/agents/websearch"
	"chainguard.dev/repoagent/repository/commitbuilder"
	"chainguard.dev/repoagent/repository/credentials"
	"chainguard.dev/repoagent/repository/editengine"
	"chainguard.dev/repoagent/repository/gitstore"
	"chainguard.dev/repoagent/repository/gitstore/ghstore"
	"chainguard.dev/repoagent/repository/sessionstore"
	"chainguard.dev/repoagent/repository/webhook"
	"chainguard.dev/repoagent/server"
	"chainguard.dev/repoagent/workqueue/dispatcher"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
)

type config struct {
	Port int `env:"PORT,default=8080"`

	// GitHub App identity. Without an app id the server only accepts
	// requests carrying their own access token.
	GitHubAppID          int64  `env:"GITHUB_APP_ID"`
	GitHubPrivateKey     string `env:"GITHUB_PRIVATE_KEY"`
	GitHubPrivateKeyPath string `env:"GITHUB_PRIVATE_KEY_PATH"`
	WebhookSecret        string `env:"GITHUB_WEBHOOK_SECRET"`
	GitHubAPIURL         string `env:"GITHUB_API_URL"`
	BotHandle            string `env:"BOT_HANDLE,default=repoagent"`
	CommitAuthorName     string `env:"COMMIT_AUTHOR_NAME"`
	CommitAuthorEmail    string `env:"COMMIT_AUTHOR_EMAIL"`

	// Model providers
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GCPProjectID    string `env:"GCP_PROJECT_ID"`
	GCPRegion       string `env:"GCP_REGION,default=us-east5"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	DefaultModel    string `env:"DEFAULT_MODEL,default=claude-sonnet-4@20250514"`

	SearchAPIKeys []string `env:"SEARCH_API_KEYS"`
	SearchURL     string   `env:"SEARCH_URL"`

	MaxSteps        int    `env:"MAX_STEPS,default=60"`
	ConcurrentTools int    `env:"CONCURRENT_TOOLS,default=1"`
	EditMatchPolicy string `env:"EDIT_MATCH_POLICY,default=replace_all"`

	ModelTimeout  time.Duration `env:"MODEL_TIMEOUT,default=5m"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=30s"`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT,default=20s"`
	CommitTimeout time.Duration `env:"COMMIT_TIMEOUT,default=2m"`

	SessionTTL     time.Duration `env:"SESSION_TTL,default=30m"`
	MaxSessions    int           `env:"MAX_SESSIONS,default=256"`
	WebhookWorkers int           `env:"WEBHOOK_WORKERS,default=4"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	policy, err := editengine.ParsePolicy(cfg.EditMatchPolicy)
	if err != nil {
		clog.FatalContextf(ctx, "invalid EDIT_MATCH_POLICY: %v", err)
	}

	creds, err := newCredentials(&cfg)
	if err != nil {
		clog.FatalContextf(ctx, "creating credential provider: %v", err)
	}

	mdls, err := newModels(ctx, &cfg)
	if err != nil {
		clog.FatalContextf(ctx, "creating model clients: %v", err)
	}

	var search *websearch.Client
	if len(cfg.SearchAPIKeys) > 0 {
		opts := []websearch.Option{websearch.WithRetryConfig(retry.Config{
			MaxRetries:     2,
			BaseBackoff:    500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			MaxJitter:      250 * time.Millisecond,
			AttemptTimeout: cfg.SearchTimeout,
		})}
		if cfg.SearchURL != "" {
			opts = append(opts, websearch.WithURL(cfg.SearchURL))
		}
		if search, err = websearch.New(cfg.SearchAPIKeys, opts...); err != nil {
			clog.FatalContextf(ctx, "creating web search client: %v", err)
		}
	} else {
		clog.WarnContextf(ctx, "SEARCH_API_KEYS is not set, web search is disabled")
	}

	sessions, err := sessionstore.New(
		sessionstore.WithTTL[context.CancelCauseFunc](cfg.SessionTTL),
		sessionstore.WithMaxEntries[context.CancelCauseFunc](cfg.MaxSessions),
		sessionstore.WithOnEvict(server.EvictSession),
	)
	if err != nil {
		clog.FatalContextf(ctx, "creating session store: %v", err)
	}
	go sessions.Run(ctx, time.Minute)

	var commitOpts []commitbuilder.Option
	if cfg.CommitAuthorName != "" && cfg.CommitAuthorEmail != "" {
		commitOpts = append(commitOpts, commitbuilder.WithAuthor(gitstore.Author{Name: cfg.CommitAuthorName, Email: cfg.CommitAuthorEmail}))
	}

	srvCfg := server.Config{
		Stores: func(ctx context.Context, ts oauth2.TokenSource) (gitstore.Store, error) {
			client, err := ghstore.NewClient(ctx, ts, cfg.GitHubAPIURL)
			if err != nil {
				return nil, err
			}
			return ghstore.New(client), nil
		},
		Models:          mdls.Model,
		Search:          search,
		DefaultModel:    cfg.DefaultModel,
		BotHandle:       cfg.BotHandle,
		MaxSteps:        cfg.MaxSteps,
		ConcurrentTools: cfg.ConcurrentTools,
		MatchPolicy:     policy,
		StoreTimeout:    cfg.StoreTimeout,
		CommitTimeout:   cfg.CommitTimeout,
		CommitOptions:   commitOpts,
		Sessions:        sessions,
		Evals:           evals.BuildTracer(evals.NewNamespacedObserver(evals.NewMetricsObserver), evals.SessionChecks()),
	}
	if creds != nil {
		srvCfg.Credentials = creds
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		clog.FatalContextf(ctx, "creating server: %v", err)
	}

	var webhooks http.Handler
	switch {
	case cfg.WebhookSecret == "":
		clog.WarnContextf(ctx, "GITHUB_WEBHOOK_SECRET is not set, webhooks are disabled")
	case creds == nil:
		clog.FatalContextf(ctx, "GITHUB_WEBHOOK_SECRET requires GITHUB_APP_ID and a private key")
	default:
		d, err := dispatcher.New(srv.RunTask, dispatcher.WithConcurrency(cfg.WebhookWorkers))
		if err != nil {
			clog.FatalContextf(ctx, "creating webhook dispatcher: %v", err)
		}
		go func() {
			if err := d.Run(ctx); err != nil {
				clog.ErrorContextf(ctx, "webhook dispatcher stopped: %v", err)
			}
		}()
		webhooks = webhook.NewHandler(cfg.WebhookSecret, webhook.Router{Handle: cfg.BotHandle}, d)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(webhooks),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			clog.ErrorContextf(ctx, "shutting down: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Starting repoagent on port %d with default model %s", cfg.Port, cfg.DefaultModel)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

// newCredentials returns nil when no GitHub App is configured.
func newCredentials(cfg *config) (*credentials.Provider, error) {
	if cfg.GitHubAppID == 0 {
		return nil, nil
	}
	pem := []byte(cfg.GitHubPrivateKey)
	if len(pem) == 0 {
		if cfg.GitHubPrivateKeyPath == "" {
			return nil, errors.New("GITHUB_PRIVATE_KEY or GITHUB_PRIVATE_KEY_PATH is required with GITHUB_APP_ID")
		}
		data, err := os.ReadFile(cfg.GitHubPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		pem = data
	}
	key, err := credentials.ParsePrivateKey(pem)
	if err != nil {
		return nil, err
	}
	exchanger, err := credentials.NewGitHubExchanger(cfg.GitHubAPIURL, http.DefaultClient)
	if err != nil {
		return nil, err
	}
	return credentials.NewProvider(cfg.GitHubAppID, key, credentials.WithExchanger(exchanger))
}
