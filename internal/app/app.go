package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/luckpoint/my-cafe-demo/internal/auth"
	"github.com/luckpoint/my-cafe-demo/internal/catalog"
	"github.com/luckpoint/my-cafe-demo/internal/config"
	"github.com/luckpoint/my-cafe-demo/internal/httpapi"
	"github.com/luckpoint/my-cafe-demo/internal/messaging"
	"github.com/luckpoint/my-cafe-demo/internal/metrics"
	"github.com/luckpoint/my-cafe-demo/internal/order"
	"github.com/luckpoint/my-cafe-demo/internal/payments"
	"github.com/luckpoint/my-cafe-demo/internal/reconcile"
	"github.com/luckpoint/my-cafe-demo/internal/storage"
	"github.com/luckpoint/my-cafe-demo/internal/ws"
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	orderSvc  *order.Service
	wsHub     *ws.Hub
	publisher messaging.Publisher
	outbox    *messaging.OutboxDispatcher
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load()
	if err != nil {
		store.Close()
		return nil, err
	}

	orderSvc := order.NewService(store.Pool())
	gateway := payments.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.BaseURL, cfg.Currency)

	sessions := auth.NewSessions(cfg.SessionSecret, strings.HasPrefix(cfg.BaseURL, "https://"))
	auth.RegisterAuth0(cfg.Auth0ClientID, cfg.Auth0ClientSecret, cfg.Auth0CallbackURL, cfg.Auth0Domain)

	wsHub := ws.NewHub()

	reg := metrics.NewRegistry()
	reconciler := reconcile.New(orderSvc, gateway, wsHub, reg, logger, cfg.Currency)

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.EventsExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	api := httpapi.NewServer(cat, orderSvc, gateway, reconciler, sessions, reg, logger, cfg.BaseURL)
	wsHandler := ws.NewHandler(wsHub, sessions)
	api.HandleFunc("GET /api/orders/ws", wsHandler.ServeWS)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	outbox := messaging.NewOutboxDispatcher(store.Pool(), publisher, cfg.OutboxInterval, cfg.OutboxBatchSize, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		orderSvc:  orderSvc,
		wsHub:     wsHub,
		publisher: publisher,
		outbox:    outbox,
		httpSrv:   httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	a.outbox.Start(ctx)

	go a.wsHub.Run(ctx)

	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	a.publisher.Close()
	a.store.Close()
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}
