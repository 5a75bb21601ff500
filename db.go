package main

import (
	"context"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"labelscan/models"
	"labelscan/pkg/config"
	"labelscan/pkg/store"
)

var (
	db       *gorm.DB
	analyses *store.Store
)

func initDB() {
	var err error
	db, err = store.Open(cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres database")
	}
	analyses = store.New(db, logger)
	ctx := context.Background()
	// DB_AUTO_MIGRATE=false skips schema changes; roles are still seeded.
	if cfg.DB.AutoMigrate {
		if err := analyses.Migrate(ctx); err != nil {
			logger.Warn().Err(err).Msg("migration warning")
		}
	} else if err := analyses.SeedRoles(ctx); err != nil {
		logger.Warn().Err(err).Msg("seeding roles failed")
	}
	seedDB()
}

// seedDB creates the development admin account. Production accounts are
// created with cmd/create_user.
func seedDB() {
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return
	}
	if cfg.App.Env != config.Development {
		logger.Warn().Msg("no admin user; create one with cmd/create_user -role administrator")
		return
	}
	var role models.Role
	if err := db.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
		logger.Error().Err(err).Msg("failed to find administrator role")
		return
	}
	rid := role.ID
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	admin := models.User{Username: "admin", HashedPassword: hashedPassword, RoleID: &rid}
	if err := db.Create(&admin).Error; err != nil {
		logger.Error().Err(err).Msg("failed to seed admin user")
		return
	}
	logger.Info().Msg("seeded admin user: username=admin, password=admin123")
}
