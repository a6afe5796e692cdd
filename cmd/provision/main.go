package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/riskibarqy/orbito-profiles/internal/app"
	"github.com/riskibarqy/orbito-profiles/internal/config"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/observability"
	"github.com/riskibarqy/orbito-profiles/internal/platform/logging"
	"github.com/riskibarqy/orbito-profiles/internal/usecase"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type provisionResult struct {
	Outcome    profile.Outcome `json:"outcome"`
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	FullName   string          `json:"full_name"`
	Role       string          `json:"role"`
	Department string          `json:"department"`
	Position   string          `json:"position"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.NewWithWriter(os.Stderr, logging.FormatJSON, logging.LevelInfo).Error("load env file", "path", *envFile, "error", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		logging.NewWithWriter(os.Stderr, logging.FormatJSON, logging.LevelInfo).Error("load config", "error", err)
		return 1
	}

	logger := logging.NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel).With(
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"env", cfg.AppEnv,
	)
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("shutdown uptrace", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, span := otel.Tracer("orbito-profiles/cmd/provision").Start(ctx, "provision.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile.store", cfg.Store),
		attribute.String("profile.insert_mode", string(cfg.InsertMode)),
	)

	provisioner, err := app.NewProvisioner(ctx, cfg, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build provisioner")
		logger.ErrorContext(ctx, "build provisioner", "store", cfg.Store, "error", err)
		return 1
	}
	defer func() {
		if err := provisioner.Close(); err != nil {
			logger.WarnContext(ctx, "close profile store", "error", err)
		}
	}()

	rec, outcome, err := provisioner.Service.EnsureProfile(ctx, usecase.EnsureProfileInput{
		ID:     cfg.ProfileID,
		Fields: cfg.ProfileFields,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ensure profile")
		logger.ErrorContext(ctx, "profile provisioning failed", "profile_id", cfg.ProfileID, "error", err)
		return 1
	}

	logger.InfoContext(ctx, "profile provisioned", "profile_id", rec.ID, "outcome", string(outcome))

	out, err := sonic.Marshal(provisionResult{
		Outcome:    outcome,
		ID:         rec.ID,
		Email:      rec.Email,
		FullName:   rec.FullName,
		Role:       rec.Role,
		Department: rec.Department,
		Position:   rec.Position,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	})
	if err != nil {
		logger.ErrorContext(ctx, "encode result", "error", err)
		return 1
	}
	_, _ = os.Stdout.Write(append(out, '\n'))
	return 0
}
