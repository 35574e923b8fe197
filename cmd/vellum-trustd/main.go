// vellum-trustd is the optional daemon hosting the trust subsystem's
// admin HTTP API (SPEC_FULL.md §6.1): a long-lived process other tooling
// (CI runners, fleet-management agents) can reach over HTTP instead of
// calling vellum-trust in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vellum-dev/vellum/internal/server"
	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/config"
	"github.com/vellum-dev/vellum/pkg/discovery"
	"github.com/vellum-dev/vellum/pkg/health"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
	"github.com/vellum-dev/vellum/pkg/paths"
	"github.com/vellum-dev/vellum/pkg/process"
	"github.com/vellum-dev/vellum/pkg/rbac"
	"github.com/vellum-dev/vellum/pkg/supervisor"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// TrustdApp wires the daemon's components together, mirroring the
// teacher's gateway-process shape: flags -> config -> components ->
// signal handling -> start -> wait for shutdown.
type TrustdApp struct {
	cfg          *config.AdminConfig
	configLoader *config.Loader
	logger       logging.Logger
	metrics      metrics.Metrics
	healthMgr    *health.HealthManager
	supervisor   *supervisor.Supervisor
	adminServer  *server.AdminServer

	pidManager    *process.PIDManager
	daemonManager *process.DaemonManager

	configFile string
	daemon     bool
	pidFile    string
	logFile    string
}

func main() {
	if len(os.Args) < 2 {
		runServe(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "serve", "daemon":
		runServe(os.Args[2:])
	case "version", "-v", "--version":
		showVersion()
	case "help", "-h", "--help":
		showHelp()
	default:
		// No recognized subcommand: treat the whole argument list as
		// flags for the default (and only) long-running mode.
		runServe(os.Args[1:])
	}
}

func runServe(args []string) {
	app := &TrustdApp{}

	if err := app.parseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if err := app.loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := app.initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing daemon: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.setupSignalHandling(cancel)

	if err := app.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting daemon: %v\n", err)
		if app.pidManager != nil {
			app.pidManager.RemovePID()
		}
		os.Exit(1)
	}

	<-ctx.Done()

	if app.pidManager != nil {
		app.pidManager.RemovePID()
	}
	app.logger.Info("trustd_shutdown_complete")
}

func (app *TrustdApp) parseFlags(args []string) error {
	fs := flag.NewFlagSet("vellum-trustd", flag.ExitOnError)

	fs.StringVar(&app.configFile, "config", paths.GetDefaultConfigPath(), "path to daemon configuration file")
	fs.BoolVar(&app.daemon, "daemon", false, "run in the background")
	fs.StringVar(&app.pidFile, "pid-file", paths.GetDefaultPIDFile(), "path to PID file")
	fs.StringVar(&app.logFile, "log-file", paths.GetDefaultLogFile(), "path to log file")

	stop := fs.Bool("stop", false, "stop a running daemon")
	status := fs.Bool("status", false, "show daemon status")
	logRotate := fs.Bool("log-rotate", false, "signal the daemon to rotate logs")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "vellum-trustd - admin API daemon for the plugin trust subsystem\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  vellum-trustd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *stop || *status || *logRotate {
		if err := app.handleControlCommand(*stop, *status, *logRotate); err != nil {
			return err
		}
		os.Exit(0)
	}

	return nil
}

func (app *TrustdApp) loadConfig() error {
	app.cfg = config.GetDefaults()
	app.logger = logging.New("vellum-trustd")
	app.configLoader = config.NewLoader(app.logger)

	if _, err := os.Stat(app.configFile); err == nil {
		opts := &config.LoadOptions{
			EnvPrefix:         "VELLUM",
			AllowEnvOverrides: true,
			Validate:          true,
		}
		if err := app.configLoader.LoadFromFile(app.configFile, app.cfg, opts); err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", app.configFile, err)
		}
	} else {
		app.logger.Info("config_file_not_found_using_defaults", "file_path", app.configFile)
	}

	if len(app.cfg.TrustDir.DiscoveryRoots) == 0 {
		app.cfg.TrustDir.DiscoveryRoots = paths.DefaultPaths().DiscoveryRoots
	}
	if app.cfg.TrustDir.StorePath == "" {
		app.cfg.TrustDir.StorePath = paths.DefaultPaths().GetTrustStoreFile()
	}

	if err := app.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

func (app *TrustdApp) initialize() error {
	app.metrics = metrics.NewProductionMetrics(app.logger)
	app.healthMgr = health.NewHealthManager(app.logger, app.metrics, Version)

	roots := buildRoots(app.cfg.TrustDir.DiscoveryRoots)
	app.supervisor = supervisor.New(supervisor.Config{
		TrustStorePath: app.cfg.TrustDir.StorePath,
		DiscoveryRoots: roots,
	}, app.logger, app.metrics)

	app.healthMgr.RegisterChecker(health.NewTrustStoreLoadedChecker(
		app.cfg.TrustDir.StorePath, app.logger, app.supervisor.Store().LoadState))

	rootPaths := make([]string, len(roots))
	for i, r := range roots {
		rootPaths[i] = r.Path
	}
	app.healthMgr.RegisterChecker(health.NewDiscoveryRootsReachableChecker(rootPaths, app.logger))

	engine, err := rbac.NewEngine(rbac.Config{
		PolicyPath:    app.cfg.RBAC.PolicyPath,
		DefaultPolicy: app.cfg.RBAC.DefaultPolicy,
		CacheTTL:      app.cfg.RBAC.CacheTTL,
		JWTConfig:     app.cfg.Server.JWT,
	}, app.logger, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create RBAC engine: %w", err)
	}

	app.adminServer = server.NewAdminServer(app.cfg.Server, app.supervisor, engine, app.healthMgr, app.logger, app.metrics)

	app.pidManager = process.NewPIDManager(app.pidFile, app.logger)
	app.daemonManager = process.NewDaemonManager(process.DaemonConfig{
		PIDFile:    app.pidFile,
		LogFile:    app.logFile,
		Background: app.daemon,
	}, app.logger)

	return nil
}

// buildRoots tags configured discovery roots with priority sources in
// list order: project, user, global, then builtin for everything after.
func buildRoots(configured []string) []discovery.Root {
	sources := []capability.Source{capability.SourceProject, capability.SourceUser, capability.SourceGlobal}
	roots := make([]discovery.Root, 0, len(configured))
	for i, p := range configured {
		src := capability.SourceBuiltin
		if i < len(sources) {
			src = sources[i]
		}
		roots = append(roots, discovery.Root{Path: p, Source: src})
	}
	return roots
}

func (app *TrustdApp) setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	go func() {
		for {
			sig := <-sigChan
			app.logger.Info("signal_received", "signal", sig.String())
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				app.logger.Info("initiating_graceful_shutdown")
				cancel()
				return
			case syscall.SIGUSR1:
				app.logger.Info("log_rotation_signal_received")
			}
		}
	}()
}

func (app *TrustdApp) start(ctx context.Context) error {
	if app.daemon {
		if err := app.daemonManager.Daemonize(); err != nil {
			return fmt.Errorf("failed to daemonize: %w", err)
		}
		if err := app.daemonManager.DetachFromTerminal(); err != nil {
			app.logger.Error("failed_to_detach_from_terminal", "error", err.Error())
		}
	}

	if err := app.pidManager.WritePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	app.pidManager.SetupCleanupOnExit()

	if !app.daemon {
		app.printBanner()
	}

	if err := app.adminServer.Start(ctx); err != nil {
		app.logger.Error("trustd_start_failed", "error", err.Error())
		app.pidManager.RemovePID()
		return err
	}
	return nil
}

func (app *TrustdApp) printBanner() {
	fmt.Printf("vellum-trustd %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	fmt.Printf("Listening on %s:%d (TLS: %v, rate-limit: %v, daemon: %v)\n",
		app.cfg.Server.Host, app.cfg.Server.Port,
		app.cfg.Server.TLS.Enabled, app.cfg.Server.RateLimit.Enabled, app.daemon)
	if app.daemon {
		fmt.Printf("PID File: %s\n", app.pidFile)
		fmt.Printf("Log File: %s\n", app.logFile)
	}
	fmt.Println()
}

func (app *TrustdApp) handleControlCommand(stop, status, logRotate bool) error {
	pidManager := process.NewPIDManager(app.pidFile, logging.New("vellum-trustd"))

	switch {
	case status:
		return handleStatusCommand(pidManager)
	case stop:
		return handleStopCommand(pidManager)
	case logRotate:
		return handleLogRotateCommand(pidManager)
	default:
		return fmt.Errorf("unknown control command")
	}
}

func handleStatusCommand(pidManager *process.PIDManager) error {
	status := pidManager.GetProcessStatus()
	fmt.Printf("vellum-trustd status:\n")
	if status.Running {
		fmt.Printf("  Status: Running\n  PID: %d\n  Start Time: %s\n  Uptime: %s\n",
			status.PID, status.StartTime, status.Uptime)
	} else {
		fmt.Printf("  Status: Stopped\n")
	}
	fmt.Printf("  PID File: %s\n", status.PIDFile)
	return nil
}

func handleStopCommand(pidManager *process.PIDManager) error {
	running, pid, err := pidManager.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check if daemon is running: %w", err)
	}
	if !running {
		fmt.Println("vellum-trustd is not running")
		return nil
	}
	fmt.Printf("Stopping vellum-trustd (PID: %d)...\n", pid)
	if err := pidManager.StopProcess(false); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Println("vellum-trustd stopped")
	return nil
}

func handleLogRotateCommand(pidManager *process.PIDManager) error {
	running, pid, err := pidManager.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check if daemon is running: %w", err)
	}
	if !running {
		fmt.Println("vellum-trustd is not running")
		return nil
	}
	fmt.Printf("Sending log rotation signal to vellum-trustd (PID: %d)...\n", pid)
	if err := pidManager.LogRotationSignal(); err != nil {
		return fmt.Errorf("failed to send log rotation signal: %w", err)
	}
	fmt.Println("Log rotation signal sent")
	return nil
}

func showVersion() {
	fmt.Printf("vellum-trustd - admin API daemon for the plugin trust subsystem\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Commit:  %s\n", Commit)
	fmt.Printf("Built:   %s\n", BuildTime)
}

func showHelp() {
	fmt.Printf("vellum-trustd - admin API daemon for the plugin trust subsystem\n\n")
	fmt.Printf("Usage:\n  vellum-trustd [options]\n\n")
	fmt.Printf("Options:\n")
	fmt.Printf("  -config <path>     daemon configuration file\n")
	fmt.Printf("  -daemon            run in the background\n")
	fmt.Printf("  -pid-file <path>   PID file location\n")
	fmt.Printf("  -log-file <path>   log file location\n")
	fmt.Printf("  -stop              stop a running daemon\n")
	fmt.Printf("  -status            show daemon status\n")
	fmt.Printf("  -log-rotate        signal the daemon to rotate logs\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  vellum-trustd -config trustd.yaml\n")
	fmt.Printf("  vellum-trustd -daemon\n")
	fmt.Printf("  vellum-trustd -status\n")
}
