package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"arb_monitor/internal/bootstrap"

	"github.com/shopspring/decimal"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/arb_monitor.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "Server port (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arb_monitor version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Prices and rates go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	if *port > 0 {
		app.Cfg.Server.Port = *port
	}

	app.Logger.Info("Starting arb_monitor",
		"version", version,
		"exchanges", app.Cfg.App.ActiveExchanges,
		"symbols", len(app.Cfg.App.Symbols),
		"port", app.Cfg.Server.Port,
	)

	svc, err := buildServices(app.Cfg, app.Logger)
	if err != nil {
		app.Logger.Error("Failed to build services", "error", err)
		app.Shutdown(5 * time.Second)
		os.Exit(1)
	}

	restoreCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	svc.restore(restoreCtx)
	cancel()

	app.Logger.Info("arb_monitor is running",
		"websocket_url", fmt.Sprintf("ws://localhost:%d/ws", app.Cfg.Server.Port),
		"health_url", fmt.Sprintf("http://localhost:%d/health", app.Cfg.Server.Port),
	)

	runErr := app.Run(svc.runners()...)

	svc.Close()
	app.Shutdown(5 * time.Second)

	if runErr != nil {
		os.Exit(1)
	}
	app.Logger.Info("arb_monitor stopped")
}
