package app

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/brianly1003/cquest/internal/config"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// ConfigureLogging points the global logger at w in the configured format.
// When a log file is configured, entries are also appended to it as JSON
// lines with size-based rotation. verbose forces debug level.
func ConfigureLogging(cfg config.LoggingConfig, verbose bool, w io.Writer) {
	out := consoleOrJSON(cfg.Format, w)
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	SetLogLevel(cfg.Level)
}

func consoleOrJSON(format string, w io.Writer) io.Writer {
	if format == "json" {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
}

// SetLogLevel sets the global level and reports whether it changed. Unknown
// levels fall back to info.
func SetLogLevel(level string) bool {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	if zerolog.GlobalLevel() == parsed {
		return false
	}
	zerolog.SetGlobalLevel(parsed)
	return true
}

// logMiddleware logs every RPC call with its duration and outcome.
func logMiddleware(method string, next handler.HandlerFunc) handler.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
		start := time.Now()
		result, rpcErr := next(ctx, params)

		clientID, _ := handler.ClientID(ctx)
		evt := log.Debug()
		if rpcErr != nil {
			evt = log.Info().Int("code", rpcErr.Code).Str("error", rpcErr.Message)
		}
		evt.Str("method", method).
			Str("client_id", clientID).
			Dur("duration", time.Since(start)).
			Msg("rpc call")
		return result, rpcErr
	}
}
