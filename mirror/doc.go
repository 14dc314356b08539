// Package mirror keeps a local clone of a remote git repository up to date.
// The mirror is a plain (non-bare) working tree so the checked out files can
// be served directly, for example as the document root of a static file
// server. On every sync cycle the remote is fetched and the result is
// classified as up-to-date, fast-forwardable or diverged; only fast-forwards
// mutate the mirror. Diverged histories are reported and left untouched,
// true merges are not supported.
//
// The working tree is updated in place, so a concurrent reader can observe
// a partially checked out tree during a fast-forward. Callers which cannot
// tolerate that should snapshot the tree themselves.
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	repo, err := mirror.New(conf, logger)
//	if err != nil {
//		panic(err)
//	}
package mirror
