package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/config"
	"github.com/marmos91/homefs/pkg/quota"
	"github.com/marmos91/homefs/pkg/server"
	"github.com/spf13/pflag"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const usage = `homefs - multi-tenant home directories with per-user quotas

Usage:
  homefs <command> [flags]

Commands:
  init      Write a default configuration file
  start     Start the server
  version   Print the version

Run "homefs <command> --help" for command flags.
`

func main() {
	// A missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "version", "--version":
		fmt.Printf("homefs %s\n", version)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Where to write the config file (default: $XDG_CONFIG_HOME/homefs/config.yaml)")
	force := flags.BoolP("force", "f", false, "Overwrite an existing config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		written, err := config.InitConfig(*force)
		if err != nil {
			return err
		}
		path = written
	} else if err := config.WriteConfig(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runStart(args []string) error {
	flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Path to the config file (default: $XDG_CONFIG_HOME/homefs/config.yaml)")
	logLevel := flags.String("log-level", "", "Override logging.level (DEBUG, INFO, WARN, ERROR)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}

	// ========================================================================
	// Step 1: Logging
	// ========================================================================

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	out, closeLog, err := logger.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	logger.SetOutput(out)

	logger.Info("homefs %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Step 2: Metrics
	// ========================================================================

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// ========================================================================
	// Step 3: Stores and engine
	// ========================================================================

	rt, err := config.InitializeRuntime(ctx, cfg, metricsResult)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Failed to close runtime: %v", err)
		}
	}()

	// A partial result means some homes could not be listed; serve the rest
	result, err := rt.Engine.Startup(ctx, cfg.Accounts.AdminPassword)
	if result == nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	if err != nil {
		logger.Warn("Index rebuilt with errors: %v", err)
	}
	logger.Info("Index rebuilt: accounts=%d discovered=%d dropped=%d pruned=%d",
		result.Accounts, result.Discovered, result.Dropped, len(result.Pruned))

	if cfg.Accounts.AdminPassword == quota.DefaultAdminPassword {
		logger.Warn("The %s account uses the default password, set accounts.admin_password", quota.AdminID)
	}

	// ========================================================================
	// Step 4: Adapters and background tasks
	// ========================================================================

	adapters, err := config.CreateAdapters(cfg, metricsResult.API)
	if err != nil {
		return err
	}

	srv := server.New(rt.Engine)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}
	if err := srv.AddBackground(rt.Reconciler); err != nil {
		return err
	}

	if metricsResult.Server != nil {
		metricsResult.Server.MarkReady()
	}
	logger.Info("homefs is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("homefs stopped")
	return nil
}
