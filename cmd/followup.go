package cmd

import (
	"context"
	"log"
	"time"

	"github.com/dealseek/ma-pilot/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Send follow-ups for submitted applications that are due",
	Run: func(cmd *cobra.Command, _ []string) {
		tick(cmd)
	},
}

func init() {
	rootCmd.AddCommand(followupCmd)

	followupCmd.Flags().Bool("dry-run", false, "log would-be follow-ups instead of sending them")
}

func tick(cmd *cobra.Command) {
	ctx := context.Background()

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

	sent, err := eng.Tick(ctx, time.Now())
	if err != nil {
		logger.Fatal("follow-up tick failed", zap.Error(err))
	}

	logger.Info("follow-up tick complete", zap.Int("sent", sent))
}
