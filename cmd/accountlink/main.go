// Command accountlink serves local registration, login and provider sign-in
// over HTTP, with a gRPC health endpoint guarded by the acting-user
// interceptors.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	al "github.com/panyam/accountlink"
	"github.com/panyam/accountlink/config"
	algrpc "github.com/panyam/accountlink/grpc"
	"github.com/panyam/accountlink/oauth2"
	"github.com/panyam/accountlink/stores/fs"
	"github.com/panyam/accountlink/stores/gae"
	gormstore "github.com/panyam/accountlink/stores/gorm"
	"github.com/panyam/accountlink/stores/sqldb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openDirectory returns the configured user directory and a cleanup func.
func openDirectory(ctx context.Context, cfg config.StoreConfig) (al.UserDirectory, func(), error) {
	noop := func() {}
	switch cfg.Kind {
	case config.StoreFS:
		return fs.NewFSUserDirectory(cfg.Path), noop, nil
	case config.StoreGORM:
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, noop, fmt.Errorf("opening gorm database: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, noop, fmt.Errorf("migrating gorm database: %w", err)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewUserDirectory(db), closer, nil
	case config.StoreSQLite, config.StorePostgres:
		driver := sqldb.DriverSQLite
		if cfg.Kind == config.StorePostgres {
			driver = sqldb.DriverPostgres
		}
		db, err := sqldb.Open(ctx, driver, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return sqldb.NewDirectory(db), func() { db.Close() }, nil
	case config.StoreDatastore:
		client, err := datastore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("creating datastore client: %w", err)
		}
		return gae.NewUserDirectory(client, cfg.Namespace), func() { client.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown store kind: %q", cfg.Kind)
}

func run(ctx context.Context, cfg config.Config) error {
	directory, closeDirectory, err := openDirectory(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeDirectory()

	logger := slog.Default()

	auth := al.NewAuthenticator(directory)
	auth.Logger = logger
	auth.Local.DefaultAvatarURL = cfg.DefaultAvatarURL
	auth.Resolver.PlaceholderAvatarURL = cfg.DefaultAvatarURL
	policy := al.DefaultSignupPolicy()
	policy.MinPasswordLength = cfg.MinPasswordLength
	policy.RequireEmail = cfg.RequireEmail
	auth.Local.SignupPolicy = &policy

	tokens := &al.TokenIssuer{
		SecretKey: []byte(cfg.Session.Secret),
		Issuer:    cfg.Session.Issuer,
		TTL:       cfg.Session.TokenTTL,
	}

	session := scs.New()
	session.Lifetime = cfg.Session.Lifetime
	session.Cookie.Secure = cfg.Session.SecureCookies
	session.Cookie.SameSite = http.SameSiteLaxMode

	gateway := (&al.SessionGateway{
		Session:                 session,
		Tokens:                  tokens,
		Routes:                  auth.Routes,
		CallbackURLCookieName:   oauth2.CallbackURLCookie,
		CookieDomains:           cfg.Session.CookieDomains,
		SessionTimeoutInSeconds: int(cfg.Session.Lifetime / time.Second),
		Logger:                  logger,
	}).EnsureDefaults()

	middleware := &al.Middleware{
		AuthTokenCookieName: gateway.AuthTokenSessionVar,
		UserParamName:       gateway.UserParamName,
		SessionGetter:       gateway.SessionGetter,
		VerifyToken:         tokens.Verify,
		CallbackURLParam:    gateway.CallbackURLParam,
		GetRedirURL: func(r *http.Request) string {
			if r.Header.Get("Accept") == "application/json" {
				return ""
			}
			return gateway.Routes.Login
		},
	}

	handlers := &al.Handlers{Auth: auth, Gateway: gateway, Middleware: middleware}
	server := al.NewServer(handlers)
	for name, p := range cfg.Providers() {
		if !p.Enabled() {
			continue
		}
		var provider *oauth2.BaseOAuth2
		switch name {
		case al.ProviderGithub:
			provider = oauth2.NewGithubOAuth2(p.ClientID, p.ClientSecret, cfg.CallbackURL(name), handlers.HandleProviderProfile)
		case al.ProviderGoogle:
			provider = oauth2.NewGoogleOAuth2(p.ClientID, p.ClientSecret, cfg.CallbackURL(name), handlers.HandleProviderProfile)
		case al.ProviderKakao:
			provider = oauth2.NewKakaoOAuth2(p.ClientID, p.ClientSecret, cfg.CallbackURL(name), handlers.HandleProviderProfile)
		}
		provider.AuthFailureURL = gateway.Routes.Login
		server.AddProvider("/auth/"+name, provider.Handler())
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	interceptors := algrpc.NewInterceptorConfig(tokens.Verify,
		"/grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health/Watch",
		"/grpc.health.v1.Health/List",
	)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(algrpc.UnaryAuthInterceptor(interceptors)),
		grpc.ChainStreamInterceptor(algrpc.StreamAuthInterceptor(interceptors)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.GRPCAddr, err)
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("serving http", "addr", cfg.HTTPAddr, "store", cfg.Store.Kind)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("serving grpc", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			errc <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown", "error", shutdownErr)
	}
	grpcServer.GracefulStop()
	return err
}
