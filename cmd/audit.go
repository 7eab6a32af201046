/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/roomify/apiserver/config"
	"github.com/roomify/apiserver/internal/audit"
	"github.com/roomify/apiserver/internal/db"
	"github.com/roomify/apiserver/internal/mq"
	"github.com/roomify/apiserver/internal/storage"
	"github.com/roomify/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail tooling",
}

var auditConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Persist audit entries published to the broker",
	Long: `Subscribes to AUDIT_CHANNEL on the broker selected by AUDIT_BACKEND
(rabbitmq or pubsub) and writes every entry to the audit_logs table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(config.WithoutSecret())
		if err != nil {
			return err
		}
		logger := config.SetupLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer broker.Close()

		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		logger.Info("consuming audit entries", slog.String("backend", cfg.Audit.Backend), slog.String("channel", cfg.Audit.Channel))
		consumer := audit.NewConsumer(broker, store.NewAuditRepository(dbConn), cfg.Audit.Channel)
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var auditExportSince string

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive audit entries as JSON lines in object storage",
	Long: `Writes every audit entry created since --since to one JSON lines object in
the bucket selected by STORAGE_BACKEND. --since is an RFC 3339 timestamp or a
duration relative to now (for example 24h).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()
		since, err := parseSince(auditExportSince, now)
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig(config.WithoutSecret())
		if err != nil {
			return err
		}
		logger := config.SetupLogger(cfg)
		ctx := cmd.Context()

		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		archive, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.EnsureBucket(ctx); err != nil {
			return err
		}

		key, count, err := audit.Export(ctx, store.NewAuditRepository(dbConn), archive, cfg.Storage.Prefix, since, now)
		if err != nil {
			return err
		}
		logger.Info("audit export written",
			slog.String("bucket", archive.Bucket()),
			slog.String("key", key),
			slog.Int("entries", count),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditConsumeCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "24h", "RFC 3339 timestamp or duration before now")
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q", raw)
	}
	return now.Add(-d), nil
}
