package cmd

import (
	"log"
	"strings"
	"time"

	"github.com/dealseek/ma-pilot/internal/followup"
	"github.com/dealseek/ma-pilot/internal/scoring"
	"github.com/dealseek/ma-pilot/internal/source"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "ma-pilot"
)

type Config struct {
	User    string               `mapstructure:"user"`
	Search  *SearchConfig        `mapstructure:"search"`
	Profile *ProfileConfig       `mapstructure:"profile"`
	Quota   *QuotaConfig         `mapstructure:"quota"`
	Sources *SourcesConfig       `mapstructure:"sources"`
	Store   *StoreConfig         `mapstructure:"store"`
	Run     *RunConfig           `mapstructure:"run"`
	SMTP    *followup.SMTPConfig `mapstructure:"smtp"`
	AI      *AIConfig            `mapstructure:"ai"`
}

type SearchConfig struct {
	Keywords    []string `mapstructure:"keywords"`
	Location    string   `mapstructure:"location"`
	RadiusMiles float64  `mapstructure:"radius-miles"`
}

type ProfileConfig struct {
	Applicant string `mapstructure:"applicant"`
	// TargetLat/TargetLon pin the search center directly; when zero the
	// search location is geocoded once at startup.
	TargetLat float64 `mapstructure:"target-lat"`
	TargetLon float64 `mapstructure:"target-lon"`

	Keywords  []scoring.WeightedKeyword `mapstructure:"keywords"`
	Companies map[string]string         `mapstructure:"companies"`

	MinScore    float64 `mapstructure:"min-score"`
	SalaryFloor int     `mapstructure:"salary-floor"`

	FollowUpDelayDays []int  `mapstructure:"follow-up-delay-days"`
	FollowUpFallback  string `mapstructure:"follow-up-fallback-address"`
}

type QuotaConfig struct {
	Daily     int    `mapstructure:"daily"`
	Weekly    int    `mapstructure:"weekly"`
	WeekStart string `mapstructure:"week-start"`
}

type SourcesConfig struct {
	Adzuna *source.AdzunaConfig     `mapstructure:"adzuna"`
	Boards []source.HTMLBoardConfig `mapstructure:"boards"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type RunConfig struct {
	MaxAttempts          int     `mapstructure:"max-attempts"`
	SubmissionsPerMinute float64 `mapstructure:"submissions-per-minute"`
	DedupWindowDays      int     `mapstructure:"dedup-window-days"`
	Workers              int     `mapstructure:"workers"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "ma-pilot finds M&A analyst postings, scores them, and drives applications under daily and weekly quotas",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("smtp-password", "MA_PILOT_SMTP_PASSWORD"); err != nil {
		log.Fatalf("binding MA_PILOT_SMTP_PASSWORD environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is ma-pilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// The version command works without a config file.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}
	if config != nil {
		config.applyDefaults()
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Search == nil {
		c.Search = &SearchConfig{}
	}
	if c.Search.RadiusMiles <= 0 {
		c.Search.RadiusMiles = 25
	}
	if len(c.Search.Keywords) == 0 {
		c.Search.Keywords = []string{"M&A analyst", "mergers acquisitions"}
	}

	if c.Profile == nil {
		c.Profile = &ProfileConfig{}
	}
	if len(c.Profile.Keywords) == 0 {
		c.Profile.Keywords = scoring.DefaultKeywords()
	}
	if len(c.Profile.Companies) == 0 {
		c.Profile.Companies = scoring.DefaultCompanies()
	}
	if c.Profile.MinScore <= 0 {
		c.Profile.MinScore = 50
	}
	if len(c.Profile.FollowUpDelayDays) == 0 {
		c.Profile.FollowUpDelayDays = []int{7, 14}
	}

	if c.Quota == nil {
		c.Quota = &QuotaConfig{}
	}
	if c.Quota.Daily <= 0 {
		c.Quota.Daily = 10
	}
	if c.Quota.Weekly <= 0 {
		c.Quota.Weekly = 40
	}

	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Path == "" {
		c.Store.Path = app + ".db"
	}

	if c.Run == nil {
		c.Run = &RunConfig{}
	}
	if c.Run.MaxAttempts <= 0 {
		c.Run.MaxAttempts = 3
	}
	if c.Run.DedupWindowDays <= 0 {
		c.Run.DedupWindowDays = 14
	}
}

func (c *Config) weekStart() time.Weekday {
	switch strings.ToLower(strings.TrimSpace(c.Quota.WeekStart)) {
	case "sunday":
		return time.Sunday
	case "", "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Monday
	}
}
