// Package logging provides structured logging for the replanning engine.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with task
// and trigger context, so every decision the monitor makes can be traced
// back to the task and signal that produced it.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Child loggers carrying task_id and trigger attributes
//   - File output (replan.log) or stderr
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via the With*
// methods share the parent's writer, and closing any of them closes the
// underlying file once.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/replan", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	taskLog := logger.WithTask("auth-1")
//	taskLog.Info("decision made", "action", "split", "confidence", 0.72)
//
// Use [NopLogger] in tests or when logging is disabled.
package logging
