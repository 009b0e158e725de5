/**
 * @description
 * Worker Service Entry Point.
 * Responsible for background maintenance:
 * 1. Expiring analysis tasks stuck in "pending".
 * 2. Sweeping temp uploads left behind by crashed requests.
 *
 * @dependencies
 * - github.com/spf13/cobra: command line flags
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/services
 * - backend/internal/uploads
 *
 * @notes
 * - `worker --once` runs a single pass and exits, for cron-style deployments.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitalchain-project/backend/internal/config"
	"github.com/vitalchain-project/backend/internal/db"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/services"
	"github.com/vitalchain-project/backend/internal/uploads"
)

const (
	defaultInterval = 10 * time.Minute
	orphanUploadAge = time.Hour
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		once     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "VitalChain background maintenance",
		Long: `Periodically marks analysis tasks that stayed pending past TASK_STALE_AFTER_HOURS
as failed and removes temp uploads older than one hour from UPLOAD_DIR.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(once, interval)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single maintenance pass and exit")
	cmd.Flags().DurationVar(&interval, "interval", defaultInterval, "Time between maintenance passes")

	return cmd
}

func run(once bool, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	logger.Info("Starting VitalChain Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect DB
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		return err
	}

	// 3. Initialize Services
	taskService := services.NewTaskService(pgDB)
	uploadManager, err := uploads.NewManager(cfg.Uploads.Dir)
	if err != nil {
		return err
	}

	// 4. Context with Cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if once {
		runMaintenance(ctx, cfg, taskService, uploadManager)
		return nil
	}

	// 5. Maintenance Loop
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial pass
	runMaintenance(ctx, cfg, taskService, uploadManager)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker exited.")
			return nil
		case <-ticker.C:
			runMaintenance(ctx, cfg, taskService, uploadManager)
		}
	}
}

// runMaintenance expires stale tasks and removes orphaned uploads. Failures are logged
// and retried on the next tick.
func runMaintenance(ctx context.Context, cfg *config.Config, tasks *services.TaskService, manager *uploads.Manager) {
	expired, err := tasks.ExpireStale(ctx, cfg.Tasks.StaleAfter)
	if err != nil {
		logger.Error("Failed to expire stale tasks: %v", err)
	} else if expired > 0 {
		logger.Info("Marked %d stale tasks as failed", expired)
	}

	removed, err := manager.SweepOrphans(orphanUploadAge, time.Now())
	if err != nil {
		logger.Error("Orphan upload sweep incomplete: %v", err)
	}
	if removed > 0 {
		logger.Info("Removed %d orphaned uploads from %s", removed, manager.Dir())
	}
}
