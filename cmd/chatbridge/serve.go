package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chatbridge/chatbridge/internal/accounts"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/conversations"
	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/crm"
	"github.com/chatbridge/chatbridge/internal/db"
	"github.com/chatbridge/chatbridge/internal/dispatch"
	"github.com/chatbridge/chatbridge/internal/docs"
	"github.com/chatbridge/chatbridge/internal/handlers"
	"github.com/chatbridge/chatbridge/internal/healthcheck"
	"github.com/chatbridge/chatbridge/internal/knowledge"
	"github.com/chatbridge/chatbridge/internal/logger"
	"github.com/chatbridge/chatbridge/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			accounts.NewService,
			credentials.NewStore,
			provideCredentialService,
			provideCRMTokenClient,
			provideCRMClient,
			provideDocsOAuthClient,
			provideDocsClient,
			knowledge.NewStore,
			provideKnowledgeService,
			conversations.NewStore,
			provideRouter,
			provideDispatcher,
			provideHealthcheck,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideCRMOAuthHandler),
			provideServerHandler(provideDocsOAuthHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(handlers.NewConversationsHandler),
			provideServerHandler(handlers.NewDocsHandler),
			provideServerHandler(handlers.NewHealthHandler),
			provideServer,
		),
		fx.Invoke(
			ensureAdminAccount,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func outboundTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.HTTP.OutboundTimeoutSeconds) * time.Second
}

func provideCRMTokenClient(log *slog.Logger, cfg config.Config) *crm.TokenClient {
	redirectURI := cfg.App.RedirectURL(cfg.CRM.RedirectPath)
	return crm.NewTokenClient(log, cfg.CRM, redirectURI, outboundTimeout(cfg))
}

func provideCRMClient(log *slog.Logger, cfg config.Config) *crm.Client {
	return crm.NewClient(log, cfg.CRM, outboundTimeout(cfg))
}

func provideDocsOAuthClient(log *slog.Logger, cfg config.Config) *docs.OAuthClient {
	redirectURI := cfg.App.RedirectURL(cfg.Docs.RedirectPath)
	return docs.NewOAuthClient(log, cfg.Docs, redirectURI, outboundTimeout(cfg))
}

func provideDocsClient(log *slog.Logger, cfg config.Config) *docs.Client {
	return docs.NewClient(log, cfg.Docs, outboundTimeout(cfg))
}

func provideCredentialService(log *slog.Logger, store *credentials.Store, crmTokens *crm.TokenClient, docsOAuth *docs.OAuthClient) *credentials.Service {
	svc := credentials.NewService(log, store)
	svc.RegisterRefresher(credentials.ProviderCRM, crmTokens)
	svc.RegisterRefresher(credentials.ProviderDocs, docsOAuth)
	return svc
}

func provideKnowledgeService(log *slog.Logger, creds *credentials.Service, reader *docs.Client, store *knowledge.Store) *knowledge.Service {
	return knowledge.NewService(log, creds, reader, store)
}

func provideRouter(log *slog.Logger, store *conversations.Store, accountService *accounts.Service) *conversations.Router {
	return conversations.NewRouter(log, store, accountService)
}

func provideDispatcher(log *slog.Logger, creds *credentials.Service, client *crm.Client, store *conversations.Store, accountService *accounts.Service, cfg config.Config) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(log, creds, client, store, accountService, cfg.CRM.ConversationProviderID)
}

func provideHealthcheck(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *healthcheck.Service {
	return healthcheck.NewService(log,
		healthcheck.DatabaseChecker(pool),
		healthcheck.ProviderConfigChecker("crm", cfg.CRM.Configured()),
		healthcheck.ProviderConfigChecker("docs", cfg.Docs.Configured()),
	)
}

func provideAuthHandler(accountService *accounts.Service, cfg config.Config) *handlers.AuthHandler {
	return handlers.NewAuthHandler(accountService, cfg.Auth)
}

func provideCRMOAuthHandler(log *slog.Logger, tokens *crm.TokenClient, store *credentials.Store, accountService *accounts.Service, cfg config.Config) *handlers.CRMOAuthHandler {
	return handlers.NewCRMOAuthHandler(log, tokens, store, accountService, cfg.App, cfg.CRM)
}

func provideDocsOAuthHandler(log *slog.Logger, oauth *docs.OAuthClient, store *credentials.Store, cfg config.Config) *handlers.DocsOAuthHandler {
	return handlers.NewDocsOAuthHandler(log, oauth, store, cfg.App, cfg.Docs)
}

func provideWebhookHandler(log *slog.Logger, router *conversations.Router) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, router)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(p serverParams) *server.Server {
	return server.New(p.Logger, p.Config.Server.Addr, p.Config.Auth.JWTSecret, p.Handlers)
}

// ensureAdminAccount bootstraps the first account so the API is usable on a
// fresh database.
func ensureAdminAccount(log *slog.Logger, accountService *accounts.Service, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := accountService.Count(ctx)
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	if cfg.Admin.Password == "change-your-password-here" {
		log.Warn("admin account uses the placeholder password, change it in config")
	}
	account, err := accountService.Create(ctx, accounts.CreateParams{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
		Email:    cfg.Admin.Email,
		Role:     "admin",
	})
	if err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	log.Info("admin account created", slog.String("username", account.Username))
	return nil
}

func startServer(lc fx.Lifecycle, srv *server.Server, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("http server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
