package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PratikDhanave/capgo-event-probe/internal/config"
	"github.com/PratikDhanave/capgo-event-probe/internal/httpserver"
	"github.com/PratikDhanave/capgo-event-probe/internal/logging"
	"github.com/PratikDhanave/capgo-event-probe/internal/probe"
	"github.com/PratikDhanave/capgo-event-probe/internal/store"
)

// shutdownTimeout bounds the graceful stop of the stub server before open
// connections are cut.
var shutdownTimeout = 5 * time.Second

const rootLong = `Send one test event to the capgo events endpoint and report whether it hangs.

Every finished request exits 0, whether it succeeded, timed out or failed.
The exit code is 1 only when the command cannot start: unknown flags, an
unparsable env value such as PROBE_RETRIES=abc, an unreadable config file
or a setting that fails validation.`

// options holds flag values. They override env and file settings only when set.
type options struct {
	configPath   string
	url          string
	capgKey      string
	timeout      time.Duration
	retries      int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	logLevel     string

	stubAddr   string
	stubMode   string
	stubStatus int

	exit int
}

func execute(ctx context.Context, args []string) int {
	o := &options{}
	root := newRootCmd(o)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return o.exit
}

func newRootCmd(o *options) *cobra.Command {
	def := config.Default()

	root := &cobra.Command{
		Use:          "capgo-probe",
		Short:        "Send one test event to the capgo events endpoint and report whether it hangs",
		Long:         rootLong,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         o.runProbe,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "optional TOML config file")
	pf.StringVar(&o.url, "url", def.URL, "events endpoint")
	pf.StringVar(&o.capgKey, "capgkey", def.CapgKey, "value of the capgkey header")
	pf.DurationVar(&o.timeout, "timeout", def.Timeout, "timeout per attempt")
	pf.IntVar(&o.retries, "retries", def.Retries, "retries after the first attempt")
	pf.DurationVar(&o.retryWaitMin, "retry-wait-min", def.RetryWaitMin, "first backoff between attempts")
	pf.DurationVar(&o.retryWaitMax, "retry-wait-max", def.RetryWaitMax, "backoff cap between attempts")
	pf.StringVar(&o.logLevel, "log-level", def.LogLevel, "debug, info, warn or error")

	run := &cobra.Command{
		Use:   "run",
		Short: "Send the test event (default)",
		Args:  cobra.NoArgs,
		RunE:  o.runProbe,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local stand-in for the events endpoint",
		Args:  cobra.NoArgs,
		RunE:  o.runStub,
	}
	sf := serve.Flags()
	sf.StringVar(&o.stubAddr, "addr", def.Stub.Addr, "listen address")
	sf.StringVar(&o.stubMode, "mode", def.Stub.Mode, "ok, status, malformed or hang")
	sf.IntVar(&o.stubStatus, "status", def.Stub.Status, "status answered in status mode")

	root.AddCommand(run, serve)
	return root
}

// resolve layers defaults, env, the config file and explicitly set flags.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.configPath != "" {
		if err := config.ApplyFile(&cfg, o.configPath); err != nil {
			return config.Config{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("url") {
		cfg.URL = o.url
	}
	if f.Changed("capgkey") {
		cfg.CapgKey = o.capgKey
	}
	if f.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if f.Changed("retries") {
		cfg.Retries = o.retries
	}
	if f.Changed("retry-wait-min") {
		cfg.RetryWaitMin = o.retryWaitMin
	}
	if f.Changed("retry-wait-max") {
		cfg.RetryWaitMax = o.retryWaitMax
	}
	if f.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if f.Lookup("mode") != nil {
		if f.Changed("addr") {
			cfg.Stub.Addr = o.stubAddr
		}
		if f.Changed("mode") {
			cfg.Stub.Mode = o.stubMode
		}
		if f.Changed("status") {
			cfg.Stub.Status = o.stubStatus
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (o *options) runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := o.resolve(cmd)
	if err != nil {
		return err
	}
	lg, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	out := probe.NewRunner(cfg, probe.NewRetryingPoster(cfg, lg), lg).Run(cmd.Context())

	o.exit = exitCode(out)
	lg.Info("exiting",
		zap.String("run_id", out.RunID),
		zap.Bool("success", out.Success()),
		zap.Int("code", o.exit))
	return nil
}

// exitCode maps a finished run to the process exit code. Failed requests are
// an expected result of the probe, so every outcome maps to 0.
func exitCode(probe.Outcome) int {
	return 0
}

func (o *options) runStub(cmd *cobra.Command, _ []string) error {
	cfg, err := o.resolve(cmd)
	if err != nil {
		return err
	}
	lg, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	st := store.NewMemoryStore()
	defer st.Close()

	srv := &http.Server{
		Addr:              cfg.Stub.Addr,
		Handler:           httpserver.NewRouter(cfg, st),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		lg.Info("stub server started",
			zap.String("addr", cfg.Stub.Addr),
			zap.String("mode", cfg.Stub.Mode),
			zap.Int("status", cfg.Stub.Status))
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "stub server")
	case <-cmd.Context().Done():
	}

	lg.Info("shutting down stub server")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		// hang-mode requests keep connections open; cut them.
		_ = srv.Close()
	}
	return nil
}
