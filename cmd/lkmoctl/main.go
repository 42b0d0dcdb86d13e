package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lkmo/lkmo-backend/internal/config"
	"github.com/lkmo/lkmo-backend/internal/database"
	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/internal/passwordreset"
	"github.com/lkmo/lkmo-backend/internal/services"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

var rootCmd = &cobra.Command{
	Use:           "lkmoctl",
	Short:         "Operator tasks for the LKMO backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// createAdminCmd creates an admin account or promotes an existing one
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account or promote an existing user",
	Long: `Create an admin account or promote an existing user.

Admins receive an email every time a user resets their password. When the
account already exists its role is set to admin; --password, when given,
replaces its password.`,
	RunE: runCreateAdmin,
}

// purgeChallengesCmd runs one janitor sweep
var purgeChallengesCmd = &cobra.Command{
	Use:   "purge-challenges",
	Short: "Delete expired password reset challenges",
	RunE:  runPurgeChallenges,
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&adminName, "name", "Admin", "display name for a new account")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password (required for a new account)")
	_ = createAdminCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(createAdminCmd, purgeChallengesCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openDB loads config and connects to the application database.
func openDB() (*gorm.DB, *zap.Logger, error) {
	cfg := config.Load()
	logger, err := utils.NewLogger(cfg.IsDevelopment())
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.DB, false)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		return nil, nil, err
	}
	return db, logger, nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	db, logger, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	user, created, err := ensureAdmin(cmd.Context(), services.NewUserDirectory(db), adminEmail, adminName, adminPassword)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Email, user.ID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "promoted %s (id %d) to admin\n", user.Email, user.ID)
	}
	return nil
}

// ensureAdmin promotes the account for email, creating it when missing.
func ensureAdmin(ctx context.Context, users *services.UserDirectory, email, name, password string) (*models.User, bool, error) {
	if password != "" && len([]rune(password)) < passwordreset.MinPasswordLength {
		return nil, false, fmt.Errorf("password must be at least %d characters", passwordreset.MinPasswordLength)
	}

	user, err := users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		if password == "" {
			return nil, false, errors.New("--password is required to create a new account")
		}
		user = &models.User{Name: name, Email: email, Role: models.RoleAdmin}
		if err := users.Create(ctx, user, password); err != nil {
			return nil, false, err
		}
		return user, true, nil
	case err != nil:
		return nil, false, err
	}

	user.Role = models.RoleAdmin
	if password != "" {
		if err := user.SetPassword(password); err != nil {
			return nil, false, fmt.Errorf("hash password: %w", err)
		}
	}
	if err := users.Save(ctx, user); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func runPurgeChallenges(cmd *cobra.Command, _ []string) error {
	db, logger, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	n, err := database.SweepChallenges(cmd.Context(), passwordreset.NewGormStore(db), time.Now(), logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d challenges\n", n)
	return nil
}
