package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dealseek/ma-pilot/internal/engine"
	"github.com/dealseek/ma-pilot/internal/followup"
	"github.com/dealseek/ma-pilot/internal/logger"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
	"github.com/dealseek/ma-pilot/internal/scoring"
	"github.com/dealseek/ma-pilot/internal/secrets"
	"github.com/dealseek/ma-pilot/internal/source"
	"github.com/dealseek/ma-pilot/internal/store"
	"github.com/dealseek/ma-pilot/internal/tailor"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var prompt = promptui.Select{
	Label: "Start the run?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch postings, score them, and submit applications under quota",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before submitting")
	runCmd.Flags().Bool("dry-run", false, "log would-be follow-ups instead of sending them")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting ma-pilot", zap.String("version", version))

	if config == nil {
		logger.Fatal("config is required")
	}
	if config.User == "" {
		logger.Fatal("the applicant identity is required under the 'user' key")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	dryRun := cmd.Flag("dry-run").Value.String() == "true"

	eng, st, err := buildEngine(ctx, config, logger, dryRun)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}
	defer st.Close()

	report, err := eng.RunOnce(ctx, time.Now())
	if err != nil {
		logger.Fatal("run aborted", zap.Error(err))
	}

	printReport(report)
}

// buildEngine wires the configured collaborators together. The returned
// store must be closed by the caller.
func buildEngine(ctx context.Context, config *Config, logger *zap.Logger, dryRun bool) (*engine.Engine, store.Store, error) {
	st, err := store.OpenSQLite(config.Store.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	sources, err := buildSources(config, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	geocoder := posting.NewCachingGeocoder(source.NewNominatim(app+"/"+version, logger))

	lat, lon := config.Profile.TargetLat, config.Profile.TargetLon
	if lat == 0 && lon == 0 {
		lat, lon, err = geocoder.Geocode(ctx, config.Search.Location)
		if err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("geocoding target location %q: %w", config.Search.Location, err)
		}
		logger.Info("geocoded target location",
			zap.String("location", config.Search.Location),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
	}

	profile := buildProfile(config, lat, lon)

	tracker := quota.NewTracker(st, quota.Limits{
		Daily:     config.Quota.Daily,
		Weekly:    config.Quota.Weekly,
		WeekStart: config.weekStart(),
	})

	primary, fallback, err := buildTailors(ctx, config, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	sender, err := buildSender(config, logger, dryRun)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	renderer, err := followup.NewRenderer("", config.Profile.Applicant, config.Profile.FollowUpFallback)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	opts := engine.Options{
		User: config.User,
		Query: source.Query{
			Keywords:    config.Search.Keywords,
			Location:    config.Search.Location,
			RadiusMiles: config.Search.RadiusMiles,
		},
		Normalizer: posting.NormalizerConfig{
			TargetLat:   lat,
			TargetLon:   lon,
			RadiusMiles: config.Search.RadiusMiles,
			DedupWindow: time.Duration(config.Run.DedupWindowDays) * 24 * time.Hour,
		},
		Profile:              profile,
		Weights:              scoring.DefaultWeights(),
		FollowUpDelayDays:    config.Profile.FollowUpDelayDays,
		MaxAttempts:          config.Run.MaxAttempts,
		Workers:              config.Run.Workers,
		SubmissionsPerMinute: config.Run.SubmissionsPerMinute,
	}

	deps := engine.Deps{
		Store:     st,
		Sources:   sources,
		Geocoder:  geocoder,
		Quota:     tracker,
		Tailor:    primary,
		Fallback:  fallback,
		Submitter: &engine.DryRunSubmitter{Logger: logger},
		FollowUps: followup.NewScheduler(st, renderer, config.User, logger),
		Sender:    sender,
		Logger:    logger,
	}

	return engine.New(opts, deps), st, nil
}

func buildSources(config *Config, logger *zap.Logger) ([]source.Fetcher, error) {
	var sources []source.Fetcher

	if config.Sources != nil && config.Sources.Adzuna != nil {
		sources = append(sources, source.NewAdzuna(*config.Sources.Adzuna, logger))
	}
	if config.Sources != nil {
		for _, board := range config.Sources.Boards {
			b, err := source.NewHTMLBoard(board, logger)
			if err != nil {
				return nil, fmt.Errorf("configuring board %q: %w", board.Name, err)
			}
			sources = append(sources, b)
		}
	}

	if len(sources) == 0 {
		return nil, errors.New("at least one source is required under the 'sources' key")
	}
	return sources, nil
}

func buildProfile(config *Config, lat, lon float64) *scoring.Profile {
	companies := make(map[string]scoring.CompanyTier, len(config.Profile.Companies))
	for name, tier := range config.Profile.Companies {
		companies[name] = scoring.ParseCompanyTier(tier)
	}

	profile := &scoring.Profile{
		TargetLat:   lat,
		TargetLon:   lon,
		RadiusMiles: config.Search.RadiusMiles,
		Keywords:    config.Profile.Keywords,
		Companies:   companies,
		MinScore:    config.Profile.MinScore,
	}
	if config.Profile.SalaryFloor > 0 {
		floor := config.Profile.SalaryFloor
		profile.SalaryFloor = &floor
	}
	return profile
}

func buildTailors(ctx context.Context, config *Config, logger *zap.Logger) (tailor.Tailor, tailor.Tailor, error) {
	static := tailor.NewStatic()

	if config.AI == nil || !config.AI.Enabled {
		return static, nil, nil
	}
	if config.AI.Gemini == nil {
		return nil, nil, errors.New("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	gemini, err := tailor.NewGemini(ctx, apiKey, config.AI.Gemini.Model, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building gemini tailor: %w", err)
	}
	return gemini, static, nil
}

func buildSender(config *Config, logger *zap.Logger, dryRun bool) (followup.Sender, error) {
	if dryRun || config.SMTP == nil || config.SMTP.Host == "" {
		return &followup.LogSender{Logger: logger}, nil
	}

	cfg := *config.SMTP
	if password := viper.GetString("smtp-password"); password != "" {
		cfg.Password = password
	}

	sender, err := followup.NewSMTPSender(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building smtp sender: %w", err)
	}
	return sender, nil
}

func printReport(report *engine.RunReport) {
	pretty, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(pretty))
}
