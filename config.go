package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/flappyduel/games/duel"
)

type Config struct {
	Bind      string `validate:"required"`
	Port      int    `validate:"min=1,max=65535"`
	Prefix    string
	Profile   bool
	TLSCert   string `validate:"omitempty,file"`
	TLSKey    string `validate:"omitempty,file"`
	Verbose   bool
	Version   bool
	LogFormat string `validate:"oneof=text json"`
	EnvFile   string

	Countdown         int           `validate:"min=0,max=60"`
	CountdownInterval time.Duration `validate:"min=10ms"`
	ReapInterval      time.Duration `validate:"gte=0"`
	SearchingMessage  string        `validate:"required"`
	SendBuffer        int           `validate:"min=1,max=4096"`

	ScreenHeight float64 `validate:"gt=0"`
	GapSize      float64 `validate:"gt=0"`
	MinMargin    float64 `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) validate() error {
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid value for %s: %v (must satisfy %s)", flagName(verrs[0].Field()), verrs[0].Value(), verrs[0].Tag())
		}

		return err
	}

	return c.layout().Validate()
}

func (c *Config) scheme() string {
	if c.TLSCert != "" && c.TLSKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) layout() duel.Layout {
	return duel.Layout{
		ScreenHeight: c.ScreenHeight,
		GapSize:      c.GapSize,
		MinMargin:    c.MinMargin,
	}
}

func (c *Config) hubOptions() duel.Options {
	opts := duel.DefaultOptions()
	opts.Countdown = c.Countdown
	opts.CountdownInterval = c.CountdownInterval
	opts.ReapInterval = c.ReapInterval
	opts.SearchingMessage = c.SearchingMessage

	return opts
}

// flagName maps a Config field back to the flag that sets it.
func flagName(field string) string {
	names := map[string]string{
		"Bind":              "bind",
		"Port":              "port",
		"TLSCert":           "tls-cert",
		"TLSKey":            "tls-key",
		"LogFormat":         "log-format",
		"Countdown":         "countdown",
		"CountdownInterval": "countdown-interval",
		"ReapInterval":      "reap-interval",
		"SearchingMessage":  "searching-message",
		"SendBuffer":        "send-buffer",
		"ScreenHeight":      "screen-height",
		"GapSize":           "gap-size",
		"MinMargin":         "min-margin",
	}

	if name, ok := names[field]; ok {
		return "--" + name
	}

	return field
}

// loadEnv reads the env file, if any, then lets FLAPPYDUEL_* variables fill
// in every flag not given on the command line.
func loadEnv(flags *pflag.FlagSet, v *viper.Viper, path string) error {
	if path != "" {
		err := godotenv.Load(path)
		if err != nil && !(errors.Is(err, fs.ErrNotExist) && !flags.Changed("env-file")) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}

	var err error

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) && err == nil {
			if setErr := flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); setErr != nil {
				err = fmt.Errorf("invalid value for %s: %w", f.Name, setErr)
			}
		}
	})

	return err
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FLAPPYDUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "flappyduel",
		Short:         "Matchmaking and relay server for head-to-head flappy bird duels.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(cmd.Flags(), v, cfg.EnvFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	flags := cmd.Flags()

	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: FLAPPYDUEL_BIND)")
	flags.IntVar(&cfg.Countdown, "countdown", 3, "first countdown value broadcast before each match (env: FLAPPYDUEL_COUNTDOWN)")
	flags.DurationVar(&cfg.CountdownInterval, "countdown-interval", time.Second, "delay between countdown broadcasts (env: FLAPPYDUEL_COUNTDOWN_INTERVAL)")
	flags.Float64Var(&cfg.GapSize, "gap-size", duel.DefaultLayout.GapSize, "height of the gap between obstacles (env: FLAPPYDUEL_GAP_SIZE)")
	flags.StringVar(&cfg.EnvFile, "env-file", ".env", "file of KEY=value pairs loaded into the environment before reading settings")
	flags.StringVar(&cfg.LogFormat, "log-format", "text", "log output format, text or json (env: FLAPPYDUEL_LOG_FORMAT)")
	flags.Float64Var(&cfg.MinMargin, "min-margin", duel.DefaultLayout.MinMargin, "minimum distance between a gap and the screen edge (env: FLAPPYDUEL_MIN_MARGIN)")
	flags.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: FLAPPYDUEL_PORT)")
	flags.StringVar(&cfg.Prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: FLAPPYDUEL_PREFIX)")
	flags.BoolVar(&cfg.Profile, "profile", false, "register net/http/pprof handlers (env: FLAPPYDUEL_PROFILE)")
	flags.DurationVar(&cfg.ReapInterval, "reap-interval", 30*time.Second, "how often to remove rooms without connected players, 0 to disable (env: FLAPPYDUEL_REAP_INTERVAL)")
	flags.Float64Var(&cfg.ScreenHeight, "screen-height", duel.DefaultLayout.ScreenHeight, "playfield height used for obstacle layout (env: FLAPPYDUEL_SCREEN_HEIGHT)")
	flags.StringVar(&cfg.SearchingMessage, "searching-message", "Searching for an opponent...", "text shown to players waiting for a match (env: FLAPPYDUEL_SEARCHING_MESSAGE)")
	flags.IntVar(&cfg.SendBuffer, "send-buffer", 64, "outgoing messages buffered per player before dropping (env: FLAPPYDUEL_SEND_BUFFER)")
	flags.StringVar(&cfg.TLSCert, "tls-cert", "", "path to tls certificate (env: FLAPPYDUEL_TLS_CERT)")
	flags.StringVar(&cfg.TLSKey, "tls-key", "", "path to tls keyfile (env: FLAPPYDUEL_TLS_KEY)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: FLAPPYDUEL_VERBOSE)")
	flags.BoolVarP(&cfg.Version, "version", "V", false, "display version and exit (env: FLAPPYDUEL_VERSION)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("flappyduel v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
