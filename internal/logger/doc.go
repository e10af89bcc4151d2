// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional source, and message.
// The source is usually a worker ID or a component name such as "tagger".
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Library scan started")
//	logger.Info("tagger", "Processing %s", path)
//	logger.Error(workerID, "Job failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("pool", "Debug message")
//
// Levels can be read from configuration with ParseLevel:
//
//	level, err := logger.ParseLevel(cfg.Log.Level)
//	logger.Default.SetLevel(level)
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
