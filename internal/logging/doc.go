// Package logging provides structured JSON logging for ragstore.
//
// Logs go to a size-rotated file under ~/.ragstore/logs/ and optionally to
// stderr. The default logger is installed process-wide via slog.SetDefault,
// so internal packages log through the standard log/slog API.
package logging
