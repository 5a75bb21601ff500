package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"labelscan/models"
	"labelscan/pkg/config"
	"labelscan/pkg/logging"
	"labelscan/pkg/store"
)

const minPasswordLen = 6

func main() {
	role := flag.String("role", models.RoleUser, "role to assign (user or administrator)")
	reset := flag.Bool("reset", false, "reset the password when the user already exists")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/create_user [-role administrator] [-reset] <username> <password>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}
	username, password := flag.Arg(0), flag.Arg(1)
	if len(password) < minPasswordLen {
		fmt.Fprintf(os.Stderr, "password too short (min %d)\n", minPasswordLen)
		os.Exit(2)
	}
	if *role != models.RoleUser && *role != models.RoleAdministrator {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.App.LogLevel, true)
	gdb, err := store.Open(cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	ctx := context.Background()
	if err := store.New(gdb, logger).SeedRoles(ctx); err != nil {
		logger.Fatal().Err(err).Msg("seed roles")
	}

	var existing models.User
	err = gdb.Where("username = ?", username).First(&existing).Error
	if err == nil {
		if !*reset {
			fmt.Printf("user %s already exists (id=%d); pass -reset to change the password\n", username, existing.ID)
			return
		}
		hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal().Err(err).Msg("bcrypt failed")
		}
		if err := gdb.Model(&existing).Update("hashed_password", hpw).Error; err != nil {
			logger.Fatal().Err(err).Msg("reset password")
		}
		// Existing sessions must log in again.
		gdb.Where("user_id = ?", existing.ID).Delete(&models.RefreshToken{})
		fmt.Printf("password reset for %s (id=%d)\n", username, existing.ID)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Fatal().Err(err).Msg("lookup user")
	}

	var r models.Role
	if err := gdb.Where("name = ?", *role).First(&r).Error; err != nil {
		logger.Fatal().Err(err).Str("role", *role).Msg("role not found")
	}
	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("bcrypt failed")
	}
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &r.ID}
	if err := gdb.Create(&user).Error; err != nil {
		logger.Fatal().Err(err).Msg("create user")
	}
	fmt.Printf("created user %s id=%d role=%s\n", username, user.ID, r.Name)
}
