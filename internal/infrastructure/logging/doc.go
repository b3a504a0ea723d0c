// Package logging provides structured logging for the command-line switch
// bridge.
//
// It wraps log/slog so that every package logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	runner.SetLogger(logger.Component("process"))
//	logger.Error("failed to connect", "error", err)
//
// Never log broker passwords or tokens. Command lines are logged at info
// level, so keep secrets out of them or pass them through the environment.
package logging
