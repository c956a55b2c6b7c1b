package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const sourcePrefix = "/post-dispatch/"

// setupLogger installs the process logger: colored text for LOG_LEVEL=debug, JSON otherwise.
func setupLogger() {
	level := slog.LevelInfo
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			panic(fmt.Sprintf("invalid log level: %s", s))
		}
	}

	if level == slog.LevelDebug {
		replacer := func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					if _, rest, found := strings.Cut(source.File, sourcePrefix); found {
						source.File = rest
					}
				}
			}
			if err, ok := a.Value.Any().(error); ok {
				aErr := tint.Err(err)
				aErr.Key = a.Key
				return aErr
			}
			return a
		}

		slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:       slog.LevelDebug,
			TimeFormat:  time.TimeOnly,
			ReplaceAttr: replacer,
			AddSource:   true,
		})))
		slog.Debug("debug logging enabled")
		return
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
