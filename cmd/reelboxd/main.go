// Package main provides the reelbox daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/reelbox/internal/api/connect"
	"github.com/osa030/reelbox/internal/app/backend"
	"github.com/osa030/reelbox/internal/app/diagnostics"
	"github.com/osa030/reelbox/internal/app/lifecycle"
	"github.com/osa030/reelbox/internal/app/player"
	"github.com/osa030/reelbox/internal/infra/config"
	"github.com/osa030/reelbox/internal/infra/logger"
	"github.com/osa030/reelbox/internal/infra/resumestore"
)

var (
	app        = kingpin.New("reelboxd", "reelbox playback lifecycle daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/reelbox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	jsonLogs   = app.Flag("json-logs", "Write JSON log lines to stdout").Bool()

	probeCmd       = app.Command("probe", "Check every configured backend and exit")
	listSignalsCmd = app.Command("list-signals", "List accepted lifecycle signals and exit")
)

func init() {
	app.Command("run", "Run the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listSignalsCmd.FullCommand() {
		printSignals()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		JSON:   *jsonLogs,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == probeCmd.FullCommand() {
		if err := probe(cfg); err != nil {
			zlog.Error().Msgf("Probe failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
		os.Exit(1)
	}
}

// run executes the daemon. Using a separate function ensures deferred
// cleanup runs even when returning with an error.
func run(cfg *config.Config) error {
	source, err := cfg.Source()
	if err != nil {
		return fmt.Errorf("invalid media: %w", err)
	}

	chain, err := backend.NewChainFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create backends: %w", err)
	}

	policy, err := lifecycle.NewPolicy(cfg.Lifecycle.Policy, cfg.PlatformVersion(), cfg.Lifecycle.ActivationThreshold)
	if err != nil {
		return fmt.Errorf("invalid lifecycle policy: %w", err)
	}
	zlog.Info().Msgf("Lifecycle policy: mode=%s platform_version=%d threshold=%d backends=%v",
		policy.Mode, policy.PlatformVersion, policy.Threshold, chain.Types())

	controllerCfg := lifecycle.Config{
		Source: source,
		Surface: player.Surface{
			WindowID: cfg.Surface.WindowID,
			Title:    cfg.Surface.Title,
		},
		Policy:          policy,
		OnPlaybackState: logPlaybackState,
	}
	if cfg.PresentOnResume() {
		controllerCfg.Presenter = lifecycle.FullscreenPresenter{}
	}
	if cfg.Resume.StateFile != "" {
		store, err := resumestore.New(cfg.Resume.StateFile)
		if err != nil {
			return fmt.Errorf("failed to create resume store: %w", err)
		}
		zlog.Info().Msgf("Resume state file: %s", store.Path())
		controllerCfg.Store = store
	}

	controller := lifecycle.NewController(chain, controllerCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := diagnostics.NewRecorder(cfg.Diagnostics.HistorySize)
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(ctx, controller.Events())
	}()

	shutdownCh := make(chan struct{})
	service := apiconnect.NewLifecycleService(controller, recorder, policy, shutdownCh)
	path, handler := apiconnect.NewHandler(service, cfg.Control.Token)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// The daemon starts visible and in the foreground.
	dispatch(ctx, controller, lifecycle.SignalVisibilityStart, lifecycle.SignalForegroundResume)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	var runErr error
loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				zlog.Info().Msg("Received SIGUSR1, moving to background")
				dispatch(ctx, controller, lifecycle.SignalBackgroundPause, lifecycle.SignalVisibilityStop)
			case syscall.SIGUSR2:
				zlog.Info().Msg("Received SIGUSR2, moving to foreground")
				dispatch(ctx, controller, lifecycle.SignalVisibilityStart, lifecycle.SignalForegroundResume)
			default:
				zlog.Info().Msg("Received shutdown signal...")
				break loop
			}
		case err := <-serverErrCh:
			runErr = fmt.Errorf("server error: %w", err)
			break loop
		}
	}

	// End watch streams and stop accepting signals before the final release
	close(shutdownCh)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	controller.Close()
	<-recorderDone
	recorder.Close()

	if n := chain.Outstanding(); n != 0 {
		zlog.Warn().Msgf("Handles still outstanding at shutdown: %d", n)
	}

	zlog.Info().Msg("Daemon stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// logPlaybackState reports engine state changes that operators care about.
func logPlaybackState(sessionID string, state player.PlaybackState) {
	switch state {
	case player.StateReady, player.StateEnded:
		zlog.Info().Msgf("Playback %s: session=%s", state, sessionID)
	default:
		zlog.Debug().Msgf("Playback %s: session=%s", state, sessionID)
	}
}

// dispatch delivers signals in order. Failures are logged and do not stop later signals.
func dispatch(ctx context.Context, controller *lifecycle.Controller, signals ...lifecycle.Signal) {
	for _, sig := range signals {
		if err := controller.HandleSignal(ctx, sig); err != nil {
			zlog.Error().Msgf("Failed to handle signal %s: %v", sig, err)
		}
	}
}

// probe checks every configured backend.
func probe(cfg *config.Config) error {
	chain, err := backend.NewChainFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create backends: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	usable := 0
	for _, r := range chain.Probe(ctx) {
		switch {
		case r.Err != nil:
			fmt.Printf("  %-6s FAILED  %v\n", r.Type, r.Err)
		case r.Version == "":
			fmt.Printf("  %-6s ok\n", r.Type)
			usable++
		default:
			fmt.Printf("  %-6s ok      %s\n", r.Type, r.Version)
			usable++
		}
	}
	if usable == 0 {
		return fmt.Errorf("no usable backend among %v", chain.Types())
	}
	return nil
}

// printSignals prints the accepted lifecycle signals.
func printSignals() {
	fmt.Println("Lifecycle Signals:")
	for _, sig := range lifecycle.Signals {
		fmt.Printf("  %s\n", sig)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
