package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pangmarket/authd/internal/authkit"
	"github.com/pangmarket/authd/internal/userstore"
	"github.com/pangmarket/authd/internal/userstorepg"
	"github.com/pangmarket/authd/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "authd",
		Short:   "Auth service issuing short-lived access tokens and long-lived refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":3001", "HTTP listen address")
	rootCmd.Flags().String("access_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("refresh_signing_key", "", "HS256 signing secret for refresh tokens")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().String("database_url", "", "Database URL for users (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().Bool("pgx_native", false, "Use the native pgx pool instead of GORM for postgres URLs")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	rootCmd.Flags().Bool("dev_errors", false, "Report internal error details to clients (development only)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("access_signing_key", rootCmd.Flags().Lookup("access_signing_key"))
	_ = viper.BindPFlag("refresh_signing_key", rootCmd.Flags().Lookup("refresh_signing_key"))
	_ = viper.BindPFlag("access_ttl", rootCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", rootCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("pgx_native", rootCmd.Flags().Lookup("pgx_native"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("dev_errors", rootCmd.Flags().Lookup("dev_errors"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	tokenIssuerName = "pang-market-auth"

	configCodeMissingAccessKey    = "config.missing_access_signing_key"
	configCodeMissingRefreshKey   = "config.missing_refresh_signing_key"
	configCodeSharedSigningKey    = "config.shared_signing_key"
	configCodeInvalidAccessTTL    = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL   = "config.invalid_refresh_ttl"
	configCodeRefreshNotLonger    = "config.refresh_ttl_not_longer"
	configCodeUninitializedConfig = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the viper-bound settings into a ServerConfig.
func LoadServerConfig() (authkit.ServerConfig, error) {
	accessSigningKey := viper.GetString("access_signing_key")
	if accessSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingAccessKey, "access_signing_key must be provided")
	}

	refreshSigningKey := viper.GetString("refresh_signing_key")
	if refreshSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingRefreshKey, "refresh_signing_key must be provided")
	}

	if accessSigningKey == refreshSigningKey {
		return authkit.ServerConfig{}, configError(configCodeSharedSigningKey, "access and refresh signing keys must differ")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	if refreshTTL <= accessTTL {
		return authkit.ServerConfig{}, configError(configCodeRefreshNotLonger, "refresh_ttl must exceed access_ttl")
	}

	return authkit.ServerConfig{
		Issuer:            tokenIssuerName,
		AccessSigningKey:  []byte(accessSigningKey),
		RefreshSigningKey: []byte(refreshSigningKey),
		AccessTTL:         accessTTL,
		RefreshTTL:        refreshTTL,
		DevErrors:         viper.GetBool("dev_errors"),
	}, nil
}

func buildUserStore(ctx context.Context, logger *zap.Logger, databaseURL string, pgxNative bool) (userstore.UserStore, error) {
	if databaseURL == "" {
		logger.Info("using in-memory user store")
		return userstore.NewMemoryUserStore(), nil
	}

	if pgxNative {
		parsed, parseErr := url.Parse(databaseURL)
		if parseErr == nil && strings.HasPrefix(strings.ToLower(parsed.Scheme), "postgres") {
			pool, poolErr := userstorepg.BuildPool(ctx, databaseURL)
			if poolErr != nil {
				return nil, poolErr
			}
			if schemaErr := userstorepg.EnsureSchema(ctx, pool); schemaErr != nil {
				return nil, schemaErr
			}
			logger.Info("using native pgx user store")
			return userstorepg.NewPostgresUserStore(pool), nil
		}
	}

	persistentStore, storeErr := userstore.NewDatabaseUserStore(ctx, databaseURL)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using persistent user store", zap.String("driver", persistentStore.Driver()))
	return persistentStore, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedConfig, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	pgxNative := viper.GetBool("pgx_native")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	userStore, storeErr := buildUserStore(context.Background(), logger, databaseURL, pgxNative)
	if storeErr != nil {
		return storeErr
	}

	clock := authkit.NewSystemClock()
	accessTokens := authkit.NewTokenIssuer(serverConfig.AccessSigningKey, serverConfig.Issuer, authkit.TokenClassAccess, serverConfig.AccessTTL, clock)
	refreshTokens := authkit.NewTokenIssuer(serverConfig.RefreshSigningKey, serverConfig.Issuer, authkit.TokenClassRefresh, serverConfig.RefreshTTL, clock)

	authkit.MountAuthRoutes(router, serverConfig, authkit.RouteDependencies{
		Users:         userStore,
		Credentials:   authkit.NewCredentialVerifier(userStore),
		AccessTokens:  accessTokens,
		RefreshTokens: refreshTokens,
		Logger:        logger,
		Metrics:       authkit.NewCounterMetrics(),
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
