// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional role label, and
// message. Labels name the process that logs: "MASTER" for the coordinator
// and "WORKER-<id>" for workers.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Run started")
//	logger.Info("MASTER", "Worker 2 now available")
//	logger.Error("WORKER-2", "Stage failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("WORKER-1", "Debug message")
//
// # Quiet Mode
//
// When the QUIET environment variable is non-empty every log call is a
// no-op. The variable is checked on each call, so it can be toggled at
// runtime (tests set it to keep output clean).
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
