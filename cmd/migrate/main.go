package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"rainbow-register/internal/config"
	"rainbow-register/internal/database"
	"rainbow-register/internal/logger"
	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
	"rainbow-register/internal/services"
)

// migrate brings the schema up to date, stores default settings, realigns
// the serial counter with existing profiles and seeds the special review codes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN(), zlog); err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	db := database.GetDB()
	if err := database.AutoMigrate(db, zlog); err != nil {
		zlog.Fatal("Failed to apply migrations", zap.Error(err))
	}

	ctx := context.Background()
	repo := repository.NewRepository(db)

	settings := services.NewSettingService(repo, zlog)
	if err := settings.EnsureDefaults(ctx, "migrate"); err != nil {
		zlog.Fatal("Failed to store default settings", zap.Error(err))
	}

	maxSerial, err := repo.MaxSerialNumber(ctx)
	if err != nil {
		zlog.Fatal("Failed to read serial numbers", zap.Error(err))
	}
	if err := repo.EnsureSequenceAtLeast(ctx, models.ProfileSerialSequence, maxSerial); err != nil {
		zlog.Fatal("Failed to align serial sequence", zap.Error(err))
	}

	ledger := services.NewInvitationService(repo, zlog, services.InvitationOptions{
		CodeLength: cfg.Review.InvitationCodeLength,
		DefaultTTL: cfg.InvitationTTL(),
		Quota:      cfg.Review.DefaultInvitationQuota,
	})
	seed := func(codes []string, notes string) {
		for _, code := range codes {
			outcome, err := ledger.EnsureCode(ctx, code, notes)
			if err != nil {
				zlog.Fatal("Failed to seed invitation code", zap.String("code", code), zap.Error(err))
			}
			zlog.Info("Invitation code seeded",
				zap.String("code", code),
				zap.String("outcome", string(outcome)),
				zap.String("notes", notes),
			)
		}
	}
	seed(cfg.Review.BypassCodes, "免审核邀请码")
	seed(cfg.Review.RejectTestCodes, "合规测试邀请码")

	zlog.Info("Migration finished", zap.Int64("serial_floor", maxSerial))
}
