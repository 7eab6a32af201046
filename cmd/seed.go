/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/roomify/apiserver/config"
	"github.com/roomify/apiserver/internal/audit"
	"github.com/roomify/apiserver/internal/db"
	"github.com/roomify/apiserver/internal/services"
	"github.com/roomify/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create bootstrap accounts",
}

var seedManager struct {
	email      string
	password   string
	name       string
	department string
}

var seedManagerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Create or reset a manager account",
	Long: `Creates a manager account, or resets an existing account with that email
to an active manager with the given password. The password may also be
passed in ROOMIFY_SEED_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := seedManager.password
		if password == "" {
			password = os.Getenv("ROOMIFY_SEED_PASSWORD")
		}
		if strings.TrimSpace(seedManager.email) == "" || password == "" {
			return errors.New("--email and --password are required")
		}

		cfg, err := config.LoadConfig(config.WithoutSecret())
		if err != nil {
			return err
		}
		logger := config.SetupLogger(cfg)

		dbConn, err := db.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		accounts := store.NewAccountRepository(dbConn)
		recorder := audit.NewRecorder(audit.NewStoreSink(store.NewAuditRepository(dbConn)), audit.WithLogger(logger))
		lockout := services.NewLockoutService(accounts, recorder, services.LockoutPolicy{
			Threshold: cfg.Auth.LockoutThreshold,
			Duration:  cfg.Auth.LockoutDuration,
		})
		staff := services.NewStaffService(accounts, lockout, recorder, nil)

		account, err := staff.EnsureManager(cmd.Context(), seedManager.email, seedManager.name, seedManager.department, password)
		if err != nil {
			return err
		}
		logger.Info("manager ready", slog.Int64("id", account.ID), slog.String("email", account.Email))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedManagerCmd)

	seedManagerCmd.Flags().StringVar(&seedManager.email, "email", "", "manager email (login name)")
	seedManagerCmd.Flags().StringVar(&seedManager.password, "password", "", "manager password")
	seedManagerCmd.Flags().StringVar(&seedManager.name, "name", "Administrator", "display name")
	seedManagerCmd.Flags().StringVar(&seedManager.department, "department", "", "department, if any")
}
