package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CodedInternet/gateway/onboard"
)

type EnvConfig struct {
	CONFIG  string `env:"GATEWAY_CONFIG" envDefault:"gateway.yaml"`
	CAN     string `env:"GATEWAY_CAN"`
	LOG_DIR string `env:"GATEWAY_LOG_DIR"`
	HTTP    string `env:"GATEWAY_HTTP"`
	SIM     bool   `env:"GATEWAY_SIM" envDefault:"false"`
	DEBUG   bool   `env:"DEBUG" envDefault:"false"`
	CONSOLE bool   `env:"GATEWAY_CONSOLE" envDefault:"true"`
}

var (
	ENV *EnvConfig
)

func main() {
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		log := newLogger(false)
		log.Fatal().Err(err).Msg("invalid environment")
	}

	if err := newRootCmd(ENV).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

// newRootCmd binds flags over e, so flags beat the environment which beats
// the config file.
func newRootCmd(e *EnvConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gateway",
		Short:        "Bridge UDP motion and control traffic onto the robot's CAN bus",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(e.DEBUG)
			cfg, err := loadConfig(e, log)
			if err != nil {
				return err
			}
			return run(cmd.Context(), e, cfg, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&e.CONFIG, "config", "c", e.CONFIG, "path to the gateway YAML config")
	flags.BoolVar(&e.SIM, "sim", e.SIM, "drive a simulated robot instead of the CAN interface")
	flags.BoolVar(&e.CONSOLE, "console", e.CONSOLE, "run the interactive operator console on stdin")
	flags.StringVar(&e.HTTP, "http", e.HTTP, "address for the HTTP status API, empty to disable")
	flags.StringVar(&e.CAN, "can", e.CAN, "CAN interface, overrides the config file")
	flags.BoolVar(&e.DEBUG, "debug", e.DEBUG, "enable debug logging")

	return cmd
}

func loadConfig(e *EnvConfig, log zerolog.Logger) (onboard.GatewayConfig, error) {
	cfg, err := onboard.LoadConfig(e.CONFIG)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", e.CONFIG).Msg("config file not found, using defaults")
	} else if err != nil {
		return cfg, err
	}

	if e.CAN != "" {
		cfg.Interface = e.CAN
	}
	if e.LOG_DIR != "" {
		cfg.Logging.Dir = e.LOG_DIR
	}
	if e.HTTP != "" {
		cfg.HTTP = e.HTTP
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, e *EnvConfig, cfg onboard.GatewayConfig, log zerolog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := onboard.NewGateway(cfg, onboard.Options{Simulate: e.SIM}, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing gateway")
		}
	}()

	log.Info().
		Str("can", cfg.Interface).
		Bool("sim", e.SIM).
		Int("motion_port", cfg.Ports.Motion).
		Int("control_port", cfg.Ports.Control).
		Msg("gateway starting")

	if cfg.HTTP != "" {
		srv := &http.Server{
			Addr:    cfg.HTTP,
			Handler: NewRouter(gw, log.With().Str("loop", "http").Logger()),
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	if e.CONSOLE {
		shell := NewShell(gw)
		// only quit shuts the gateway down, a closed stdin just ends the console
		go shell.Run()
		defer shell.Close()
	}

	return gw.Run(ctx)
}
