package db

import (
	"fmt"
	"os"
	"strings"

	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultAdminUsername = "admin"

// SeedAdmin creates the initial administrator account when the admins table is
// empty. The password comes from PLACEBOOK_ADMIN_PASSWORD; without it, seeding
// is skipped so a fresh deployment cannot end up with a known credential.
func SeedAdmin(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	password := strings.TrimSpace(os.Getenv("PLACEBOOK_ADMIN_PASSWORD"))
	if password == "" {
		log.Warn("no admins exist and PLACEBOOK_ADMIN_PASSWORD is unset, skipping admin seed")
		return nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("db: hash admin password: %w", errHash)
	}
	admin := models.Admin{Username: defaultAdminUsername, Password: hash, Active: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("db: seed admin: %w", errCreate)
	}
	log.WithField("username", admin.Username).Info("seeded initial admin account")
	return nil
}
