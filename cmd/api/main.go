package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"printstudio/internal/config"
	"printstudio/internal/handler"
	"printstudio/internal/infra/db"
	"printstudio/internal/infra/mpesa"
	infraRepo "printstudio/internal/infra/repository"
	"printstudio/internal/infra/session"
	"printstudio/internal/server"
	"printstudio/internal/usecase"
	"printstudio/internal/validator"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lg, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg, lg)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := session.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// repository
	txm := infraRepo.NewTxManagerGorm(gormDB)
	users := infraRepo.NewUserGormRepository(gormDB)
	orders := infraRepo.NewOrderGormRepository(gormDB)
	orderItems := infraRepo.NewOrderItemGormRepository(gormDB)
	carts := infraRepo.NewCartGormRepository(gormDB)
	products := infraRepo.NewProductGormRepository(gormDB)
	auditLogs := infraRepo.NewAuditLogGormRepository(gormDB)
	sessions := session.NewRedisStore(rdb)

	gateway := mpesa.New(cfg.MPesa, mpesa.NewRedisTokenCache(rdb), lg)
	clock := usecase.SystemClock()

	// usecase
	authUC := usecase.NewAuthUsecase(cfg, users, sessions, validator.NewAuthValidator(users), usecase.UUIDGenerator(), clock)
	productUC := usecase.NewProductUsecase(products)
	cartUC := usecase.NewCartUsecase(carts, carts, products)
	orderUC := usecase.NewOrderUsecase(txm, orders, orderItems, clock)
	paymentUC := usecase.NewPaymentUsecase(txm, gateway, clock, lg.Named("payment"), cfg.PaymentMaxAttempts)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, orders, orderItems, auditLogs, clock)

	e := server.New(lg.Named("http"), authUC, server.Handlers{
		Auth:       handler.NewAuthHandler(authUC),
		Product:    handler.NewProductHandler(productUC),
		Cart:       handler.NewCartHandler(cartUC),
		Order:      handler.NewOrderHandler(orderUC, cfg),
		Payment:    handler.NewPaymentHandler(paymentUC, lg.Named("callback")),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	}, map[string]server.HealthCheck{
		"postgres": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.GoEnv))
		return server.Run(gctx, e, ":"+cfg.Port, 10*time.Second)
	})

	if err := g.Wait(); err != nil {
		lg.Error("server stopped", zap.Error(err))
		return err
	}
	lg.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProd() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
