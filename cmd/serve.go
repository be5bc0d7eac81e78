package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dealseek/ma-pilot/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultRunSchedule      = "0 9 * * *"
	defaultFollowUpSchedule = "0 10 * * *"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run continuously, applying and following up on a schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("run-schedule", defaultRunSchedule, "cron expression for application runs")
	serveCmd.Flags().String("followup-schedule", defaultFollowUpSchedule, "cron expression for follow-up ticks")
	serveCmd.Flags().Bool("dry-run", false, "log would-be follow-ups instead of sending them")
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil || config.User == "" {
		logger.Fatal("the applicant identity is required under the 'user' key")
	}

	dryRun := cmd.Flag("dry-run").Value.String() == "true"

	eng, st, err := buildEngine(ctx, config, logger, dryRun)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}
	defer st.Close()

	scheduler := cron.New()

	runSchedule := cmd.Flag("run-schedule").Value.String()
	if _, err := scheduler.AddFunc(runSchedule, func() {
		report, err := eng.RunOnce(ctx, time.Now())
		if err != nil {
			logger.Error("scheduled run failed", zap.Error(err))
			return
		}
		logger.Info("scheduled run complete",
			zap.Int("submitted", report.Submitted),
			zap.Int("failed", report.Failed),
			zap.Int("skipped_quota", report.SkippedQuota),
		)
	}); err != nil {
		logger.Fatal("invalid run schedule", zap.String("schedule", runSchedule), zap.Error(err))
	}

	followupSchedule := cmd.Flag("followup-schedule").Value.String()
	if _, err := scheduler.AddFunc(followupSchedule, func() {
		sent, err := eng.Tick(ctx, time.Now())
		if err != nil {
			logger.Error("scheduled follow-up tick failed", zap.Error(err))
			return
		}
		logger.Info("scheduled follow-up tick complete", zap.Int("sent", sent))
	}); err != nil {
		logger.Fatal("invalid follow-up schedule", zap.String("schedule", followupSchedule), zap.Error(err))
	}

	logger.Info("serving",
		zap.String("run_schedule", runSchedule),
		zap.String("followup_schedule", followupSchedule),
	)

	scheduler.Start()
	<-ctx.Done()

	cronCtx := scheduler.Stop()
	// Let an in-flight run finish before exiting.
	<-cronCtx.Done()
	logger.Info("stopped")
}
