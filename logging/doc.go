// Package logging provides a minimal logging interface and adapters for the
// runtime.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the runner, flows and agents use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RuntimeLogger with contextual helpers (component, session, invocation)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Logger methods take a message plus alternating key/value pairs, matching
// the log/slog convention:
//
//	logger := logging.NewLogger(logging.DefaultLoggerConfig())
//	r := runner.New("app", rootAgent, func(o *runner.Options) {
//		o.Logger = logger
//	})
//	logger.Info("run finished", "session_id", sessionID)
//
// Any implementation of the four methods can be injected; nothing in the
// runtime binds to a specific logging backend.
package logging
