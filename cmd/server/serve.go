package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/affiliatehub/backend/internal/config"
	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/handler"
	appMiddleware "github.com/affiliatehub/backend/internal/middleware"
	"github.com/affiliatehub/backend/internal/quota"
	"github.com/affiliatehub/backend/internal/repository"
	"github.com/affiliatehub/backend/internal/service"
	"github.com/affiliatehub/backend/internal/ws"
	"github.com/affiliatehub/backend/pkg/crypto"
	"github.com/affiliatehub/backend/pkg/genai"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/affiliatehub/backend/pkg/payment"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger.Initialize(cfg.Env)
	defer logger.Sync()

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	defer db.Close()

	if err := repository.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	logger.Log.Info("database connected and migrated")

	cipher, err := crypto.NewFieldCipher(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption error: %w", err)
	}

	// Redis is optional: without it AI generations are not metered.
	var (
		aiQuota     service.Quota
		redisHealth handler.Pinger
	)
	if cfg.RedisURL != "" {
		rdb, err := quota.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Log.Warn("redis not available, AI quota disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			aiQuota = quota.NewLimiter(rdb, cfg.AI.DailyQuota, planQuotas())
			redisHealth = redisPinger{client: rdb}
			logger.Log.Info("redis connected")
		}
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	planChangeRepo := repository.NewPlanChangeRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	contentRepo := repository.NewContentRepository(db)
	websiteRepo := repository.NewWebsiteRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	// Vendors
	paypal := payment.NewPayPalGateway(cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, cfg.PayPal.Mode, cfg.PayPal.APIBase)
	gemini := genai.NewClient(cfg.AI.APIKey, cfg.AI.APIBase)
	if domain.IsPlaceholderCredential(cfg.PayPal.ClientID) {
		logger.Log.Warn("PayPal credentials are not configured; payment flows will fail")
	}
	if domain.IsPlaceholderCredential(cfg.AI.APIKey) {
		logger.Log.Warn("GEMINI_API_KEY is not configured; AI flows will fail")
	}

	// Services
	affiliateSvc := service.NewAffiliateService(referralRepo, payoutRepo, refundRepo, userRepo, orderRepo, cipher)
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, userRepo, affiliateSvc)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		return fmt.Errorf("admin seed error: %w", err)
	}
	billingSvc := service.NewBillingService(paypal, subRepo, orderRepo, planChangeRepo, userRepo, affiliateSvc, cfg.PayPal.PlanIDs)
	aiSvc := service.NewAIService(gemini, aiQuota, userRepo, cfg.AI.VideoPollInterval, cfg.AI.VideoMaxPolls)
	contentSvc := service.NewContentService(contentRepo, websiteRepo, userRepo)
	systemSvc := service.NewSystemService(snapshotRepo, service.StatsSource{
		Users:         userRepo,
		Subscriptions: subRepo,
		Orders:        orderRepo,
		Contents:      contentRepo,
		Payouts:       payoutRepo,
		Refunds:       refundRepo,
	})

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	healthHandler := handler.NewHealthHandler(db, redisHealth)
	plansHandler := handler.NewPlansHandler()
	paymentHandler := handler.NewPaymentHandler(billingSvc)
	aiHandler := handler.NewAIHandler(aiSvc)
	affiliateHandler := handler.NewAffiliateHandler(affiliateSvc)
	contentHandler := handler.NewContentHandler(contentSvc)
	adminHandler := handler.NewAdminHandler(systemSvc, authSvc, affiliateSvc, billingSvc)
	// 0.5 req/sec per user, burst of 5; shared by the AI routes and the video WebSocket.
	aiLimiter := appMiddleware.NewRateLimiter(ctx, 0.5, 5, appMiddleware.UserOrIP)
	videoHandler := ws.NewVideoHandler(aiSvc, authSvc, aiLimiter, appMiddleware.UserKey)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(appMiddleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 20 req/sec per IP, burst of 40
	r.Use(appMiddleware.NewRateLimiter(ctx, 20, 40, nil).Middleware())

	r.Get("/health", healthHandler.Check)
	r.Get("/api/plans", plansHandler.List)
	r.Get("/api/plans/{id}", plansHandler.Get)
	r.Get("/api/sites/{username}", contentHandler.PublicWebsite)

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.NewRateLimiter(ctx, 1, 5, nil).Middleware())
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/register", authHandler.Register)
	})

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(authSvc))

		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/payment", func(r chi.Router) {
			r.Post("/orders", paymentHandler.CreateOrder)
			r.Post("/orders/{id}/capture", paymentHandler.CaptureOrder)
			r.Get("/subscription", paymentHandler.GetSubscription)
			r.Post("/subscription", paymentHandler.Subscribe)
			r.Post("/subscription/confirm", paymentHandler.ConfirmSubscription)
			r.Post("/subscription/change", paymentHandler.ChangePlan)
			r.Post("/subscription/cancel", paymentHandler.Cancel)
		})

		r.Route("/api/ai", func(r chi.Router) {
			r.Use(aiLimiter.Middleware())
			r.Post("/text", aiHandler.Text)
			r.Post("/image", aiHandler.Image)
			r.Post("/video", aiHandler.Video)
			r.Post("/website", aiHandler.Website)
		})

		r.Route("/api/affiliate", func(r chi.Router) {
			r.Get("/dashboard", affiliateHandler.Dashboard)
			r.Get("/referrals", affiliateHandler.Referrals)
			r.Put("/payout-email", affiliateHandler.SetPayoutEmail)
			r.Get("/payouts", affiliateHandler.Payouts)
			r.Post("/payouts", affiliateHandler.RequestPayout)
		})
		r.Get("/api/refunds", affiliateHandler.Refunds)
		r.Post("/api/refunds", affiliateHandler.RequestRefund)

		r.Route("/api/content", func(r chi.Router) {
			r.Get("/", contentHandler.List)
			r.Post("/", contentHandler.Save)
			r.Post("/{id}/publish", contentHandler.Publish)
			r.Delete("/{id}", contentHandler.Delete)
		})
		r.Route("/api/websites/me", func(r chi.Router) {
			r.Get("/", contentHandler.GetWebsite)
			r.Put("/", contentHandler.SaveWebsite)
			r.Post("/publish", contentHandler.PublishWebsite)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Get("/stats", adminHandler.GetStats)
			r.Get("/users", adminHandler.ListUsers)
			r.Post("/users", adminHandler.CreateUser)
			r.Delete("/users/{id}", adminHandler.DeleteUser)
			r.Get("/payouts", adminHandler.ListPayouts)
			r.Post("/payouts/{id}/process", adminHandler.ProcessPayout)
			r.Get("/refunds", adminHandler.ListRefunds)
			r.Post("/refunds/{id}/process", adminHandler.ProcessRefund)
			r.Post("/referrals/connect", adminHandler.ConnectReferral)
			r.Get("/plan-changes/{userId}", adminHandler.PlanChanges)
		})
	})

	// WebSocket (auth via query param, rate limited by aiLimiter)
	r.Get("/ws/ai/video", videoHandler.Handle)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays 0: video generation and WebSockets are long-lived.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("AffiliateHub backend listening", zap.String("addr", addr), zap.String("version", Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// planQuotas maps each paid plan to its daily AI allowance.
func planQuotas() map[string]int {
	out := make(map[string]int)
	for _, p := range domain.AvailablePlans() {
		out[p.ID] = p.AIDaily
	}
	return out
}
