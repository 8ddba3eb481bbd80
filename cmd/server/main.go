package main // Entry point package

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/amplmaint/mo-approval-api/internal/auth"
	"github.com/amplmaint/mo-approval-api/internal/config"
	"github.com/amplmaint/mo-approval-api/internal/handler"
	"github.com/amplmaint/mo-approval-api/internal/queue"
	"github.com/amplmaint/mo-approval-api/internal/repository"
	"github.com/amplmaint/mo-approval-api/internal/router"
	"github.com/amplmaint/mo-approval-api/internal/sap"
	queuepublisher "github.com/amplmaint/mo-approval-api/internal/service"
)

// tokenFetchTimeout bounds the CSRF token endpoint call; OData calls
// get the longer configurable timeout.
const tokenFetchTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	log := logrus.New()
	cfg := config.Load()
	if cfg.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	// User store and session authenticator.
	users := repository.NewUserStore(cfg.UsersFile, cfg.BcryptCost, log)
	if err := users.EnsureInitialized(); err != nil {
		log.WithError(err).Fatal("failed to initialize user store")
	}
	authSvc := auth.NewService(users, cfg.SessionTTL, log)

	// Upstream gateway.  The token manager gets its own short-timeout
	// client; OData traffic shares the longer one.
	tokens := sap.NewTokenManager(sap.TokenManagerConfig{
		TokenURL:      cfg.TokenURL(),
		Username:      cfg.SAPUsername,
		Password:      cfg.SAPPassword,
		ClientID:      cfg.SAPClient,
		CacheDuration: cfg.CSRFCacheTTL,
	}, sap.NewHTTPClient(tokenFetchTimeout, cfg.VerifyTLS), log)
	gateway := sap.NewClient(sap.ClientConfig{
		BaseURL:     cfg.SAPBaseURL,
		ServicePath: cfg.SAPServicePath,
		Username:    cfg.SAPUsername,
		Password:    cfg.SAPPassword,
		ClientID:    cfg.SAPClient,
	}, sap.NewHTTPClient(cfg.SAPTimeout, cfg.VerifyTLS), tokens, log)

	// Optional collaborators.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Info("redis unavailable, login rate limiting disabled")
	}
	if cfg.AuditEnabled {
		go queue.StartAuditConsumer(queuepublisher.BrokerURL(), log)
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Cfg:     cfg,
		Auth:    handler.NewAuthHandler(authSvc),
		Orders:  handler.NewOrdersHandler(gateway, cfg.AuditEnabled, log),
		Health:  handler.NewHealthHandler(cfg, gateway, authSvc),
		AuthSvc: authSvc,
		Redis:   rdb,
		Log:     log,
	})

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{
		"addr": addr,
		"env":  cfg.Env,
		"sap":  cfg.SAPBaseURL,
	}).Info("starting server")

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	// Block until SIGINT/SIGTERM, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}
