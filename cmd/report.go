package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/logger"
	"github.com/dealseek/ma-pilot/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show application pipeline statistics",
	Run: func(_ *cobra.Command, _ []string) {
		report()
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func report() {
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

	st, err := store.OpenSQLite(config.Store.Path, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	stats, err := st.Stats(ctx, config.User, time.Now())
	if err != nil {
		logger.Fatal("collecting stats", zap.Error(err))
	}

	printStats(stats)
}

func printStats(stats *store.Stats) {
	pterm.DefaultSection.Println("Application pipeline")

	pterm.Printfln("Total applications: %s", humanize.Comma(int64(stats.Total)))
	pterm.Printfln("Submitted in the last week: %s", humanize.Comma(int64(stats.RecentWeek)))
	pterm.Printfln("Response rate: %s", colorRate(stats.ResponseRate))

	statusRows := pterm.TableData{{"Status", "Count"}}
	for _, status := range []application.Status{
		application.StatusPending,
		application.StatusSubmitted,
		application.StatusResponded,
		application.StatusRejected,
		application.StatusNoResponse,
		application.StatusFailedTransient,
		application.StatusAbandoned,
		application.StatusExcluded,
	} {
		if count := stats.ByStatus[status]; count > 0 {
			statusRows = append(statusRows, []string{string(status), humanize.Comma(int64(count))})
		}
	}

	pterm.DefaultSection.Println("By status")
	pterm.DefaultTable.WithHasHeader().WithData(statusRows).Render()

	if len(stats.TopCompanies) > 0 {
		companyRows := pterm.TableData{{"Company", "Applications"}}
		for _, cc := range stats.TopCompanies {
			companyRows = append(companyRows, []string{cc.Company, humanize.Comma(int64(cc.Count))})
		}
		pterm.DefaultSection.Println("Top companies")
		pterm.DefaultTable.WithHasHeader().WithData(companyRows).Render()
	}
}

// colorRate takes the response rate as a percentage.
func colorRate(rate float64) string {
	formatted := fmt.Sprintf("%.1f%%", rate)
	switch {
	case rate >= 20:
		return pterm.Green(formatted)
	case rate >= 5:
		return pterm.Yellow(formatted)
	default:
		return pterm.Red(formatted)
	}
}
