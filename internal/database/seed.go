package database

import (
	"fmt"
	"strings"

	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/config"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultSuperadminUsername = "superadmin"

// SeedSuperadmin inserts the configured superadmin unless an account with
// the same email or username already exists.
func SeedSuperadmin(db *gorm.DB, cfg config.SuperadminConfig, hasher auth.PasswordHasher) error {
	if !cfg.Enabled() {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultSuperadminUsername
	}

	hash, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash superadmin password: %w", err)
	}

	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleSuperadmin,
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if res.Error != nil {
		return fmt.Errorf("seed superadmin failed: %w", res.Error)
	}

	log := logger.Get()
	if res.RowsAffected == 1 {
		log.Info().Str("email", email).Msg("superadmin seeded")
	} else {
		log.Info().Str("email", email).Msg("superadmin already exists")
	}
	return nil
}
