package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventfinder_auth/internal/auth"
	"eventfinder_auth/internal/config"
	changePassword "eventfinder_auth/internal/http_server/handlers/change_password"
	forgotPassword "eventfinder_auth/internal/http_server/handlers/forgot_password"
	"eventfinder_auth/internal/http_server/handlers/login"
	"eventfinder_auth/internal/http_server/handlers/logout"
	"eventfinder_auth/internal/http_server/handlers/profile"
	"eventfinder_auth/internal/http_server/handlers/refresh"
	"eventfinder_auth/internal/http_server/handlers/register"
	resendOtp "eventfinder_auth/internal/http_server/handlers/resend_otp"
	resetPassword "eventfinder_auth/internal/http_server/handlers/reset_password"
	verifyLoginOtp "eventfinder_auth/internal/http_server/handlers/verify_login_otp"
	verifyRegisterOtp "eventfinder_auth/internal/http_server/handlers/verify_register_otp"
	"eventfinder_auth/internal/lib/hasher"
	"eventfinder_auth/internal/lib/jwt"
	sl "eventfinder_auth/internal/lib/logger"
	"eventfinder_auth/internal/middleware/authn"
	rateLimit "eventfinder_auth/internal/middleware/ratelimit"
	"eventfinder_auth/internal/rabbitmq"
	"eventfinder_auth/internal/storage/mongodb"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := mongodb.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect mongodb", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close(context.Background())

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	tokens := jwt.NewManager(cfg.Tokens)

	authService := auth.New(
		log,
		storage,
		storage,
		storage,
		msgBroker,
		hasher.NewBcrypt(),
		tokens,
		cfg.Otp,
	)

	router := setupRouter(log, authService, tokens, cfg)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	tokens *jwt.Manager,
	cfg *config.Config,
) *chi.Mux {
	validate := validator.New()
	secureCookie := cfg.Env == envProd
	cookieMaxAge := cfg.Tokens.RefreshTokenTTL

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("EventFinder auth service is running"))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register",
			register.New(log, validate, authService),
		)
		r.With(rateLimit.VerifyOtp()).Post("/verify-register-otp",
			verifyRegisterOtp.New(log, validate, authService),
		)
		r.With(rateLimit.Login()).Post("/login",
			login.New(log, validate, authService, cookieMaxAge, secureCookie),
		)
		r.With(rateLimit.VerifyOtp()).Post("/verify-login-otp",
			verifyLoginOtp.New(log, validate, authService, cookieMaxAge, secureCookie),
		)
		r.With(rateLimit.Refresh()).Post("/refresh",
			refresh.New(log, authService),
		)
		r.With(rateLimit.Logout()).Post("/logout",
			logout.New(log, secureCookie),
		)
		r.With(rateLimit.PasswordReset()).Post("/forgot-password",
			forgotPassword.New(log, validate, authService),
		)
		r.With(rateLimit.PasswordReset()).Post("/reset-password",
			resetPassword.New(log, validate, authService),
		)
		r.With(rateLimit.ResendOtp()).Post("/resend-otp",
			resendOtp.New(log, validate, authService),
		)

		r.With(authn.Middleware(log, tokens)).Post("/change-password",
			changePassword.New(log, validate, authService),
		)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(authn.Middleware(log, tokens))

		r.Get("/profile", profile.New(log, authService))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
