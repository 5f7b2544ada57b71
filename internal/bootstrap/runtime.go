// Package bootstrap wires the shared runtime dependencies used by the
// server and the command line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/seed"
	"inkwell/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedCatalog bool
	// SkipRedis leaves the Redis client nil, for tools that only touch the DB.
	SkipRedis bool
}

// InitRuntime connects to DB and Redis and optionally seeds the built-in
// catalog. A nil Redis client means Redis was unreachable or skipped.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	var r *redis.Client
	if !opts.SkipRedis {
		r, err = cache.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			middleware.Logger.Warn("continuing without redis", slog.String("error", err.Error()))
			r = nil
		}
		cache.SetClient(r)
	}

	if err := ensureDevAdmin(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedCatalog {
		if err := seed.Catalog(db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	return db, r, nil
}

// ensureDevAdmin creates or promotes a known admin account in development,
// since categories can only be created by an admin.
func ensureDevAdmin(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	email := strings.ToLower(strings.TrimSpace(cfg.DevAdminEmail))
	if err := validation.ValidateUsername(username); err != nil {
		return fmt.Errorf("DEV_ADMIN_USERNAME: %w", err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("DEV_ADMIN_EMAIL: %w", err)
	}
	if cfg.DevAdminPassword == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}
	if err := validation.ValidatePassword(cfg.DevAdminPassword); err != nil {
		return fmt.Errorf("DEV_ADMIN_PASSWORD: %w", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.Where("email = ?", email).First(&admin).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.DevAdminPassword), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			admin = models.User{
				Username: username,
				Email:    email,
				Password: string(hashedPassword),
				IsAdmin:  true,
			}
			if err := tx.Create(&admin).Error; err != nil {
				return err
			}
			_, err = repository.NewProfileRepository(tx).EnsureForUser(context.Background(), admin.ID)
			return err
		case findErr != nil:
			return findErr
		case admin.IsAdmin:
			return nil
		default:
			return tx.Model(&models.User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error
		}
	})
	if err != nil {
		return err
	}

	log.Printf("development admin ensured (%s)", email)
	return nil
}
