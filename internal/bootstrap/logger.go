package bootstrap

import (
	"arb_monitor/pkg/logging"
	"arb_monitor/pkg/telemetry"
)

// InitLogger creates the zap logger and installs it as the global logger
func InitLogger(cfg *Config) (*logging.ZapLogger, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.SetGlobalLogger(logger)
	return logger, nil
}

// InitTelemetry installs the OTel providers, or only the Prometheus exporter when telemetry is disabled
func InitTelemetry(cfg *Config) (*telemetry.Telemetry, error) {
	if !cfg.Telemetry.Enabled {
		return nil, telemetry.InitMetrics()
	}
	return telemetry.Setup(cfg.App.Name, telemetry.Options{
		StdoutTraces: cfg.Telemetry.StdoutTraces,
		StdoutLogs:   cfg.Telemetry.StdoutLogs,
	})
}
