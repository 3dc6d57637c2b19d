package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/civigo/benefits/internal/api"
	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/harness"
	"github.com/civigo/benefits/internal/mapper"
	"github.com/civigo/benefits/internal/matcher"
	"github.com/civigo/benefits/internal/store"
	"github.com/civigo/benefits/internal/verifier"
)

// ServeConfig is the YAML configuration for the serve command. Flags
// override file values; the OpenAI key comes only from the
// OPENAI_API_KEY environment variable.
type ServeConfig struct {
	Addr string `yaml:"addr"`
	DB   string `yaml:"db"`

	Reference struct {
		Endpoint       string `yaml:"endpoint"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		Retries        int    `yaml:"retries"`
	} `yaml:"reference"`

	OpenAI struct {
		Model string `yaml:"model"`
	} `yaml:"openai"`

	Workers int `yaml:"workers"`
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr       string
	ConfigPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve the evaluation and mapping API over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")

	return cmd
}

func loadServeConfig(path string) (*ServeConfig, error) {
	cfg := &ServeConfig{Addr: ":8080"}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read config", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse config", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg, nil
}

func runServe(opts *ServeOptions) error {
	cfg, err := loadServeConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	dbPath := opts.DBPath
	if cfg.DB != "" && !flagChanged(opts) {
		dbPath = cfg.DB
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	eng := engine.New(st)

	var harnessOpts []harness.Option
	if cfg.Workers > 0 {
		harnessOpts = append(harnessOpts, harness.WithWorkers(cfg.Workers))
	}
	if cfg.Reference.Endpoint != "" {
		var refOpts []verifier.Option
		if cfg.Reference.TimeoutSeconds > 0 {
			refOpts = append(refOpts, verifier.WithTimeout(time.Duration(cfg.Reference.TimeoutSeconds)*time.Second))
		}
		if cfg.Reference.Retries > 0 {
			refOpts = append(refOpts, verifier.WithRetries(cfg.Reference.Retries))
		}
		harnessOpts = append(harnessOpts, harness.WithReference(verifier.New(cfg.Reference.Endpoint, refOpts...)))
	}
	h := harness.New(st, eng, harnessOpts...)

	var mapperOpts []mapper.Option
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		m, err := matcher.NewOpenAIMatcher(key, cfg.OpenAI.Model)
		if err != nil {
			return WrapExitError(ExitCommandError, "configure semantic matcher", err)
		}
		mapperOpts = append(mapperOpts, mapper.WithSemanticMatcher(m))
	}
	mp := mapper.New(st, mapperOpts...)

	router := api.NewRouter(api.NewHandlers(st, eng, h, mp))
	fmt.Fprintf(os.Stderr, "listening on %s (db %s)\n", cfg.Addr, dbPath)
	if err := router.Run(cfg.Addr); err != nil {
		return WrapExitError(ExitCommandError, "serve", err)
	}
	return nil
}

// flagChanged reports whether --db was set explicitly, in which case
// it wins over the config file.
func flagChanged(opts *ServeOptions) bool {
	return opts.DBPath != defaultDBPath()
}
