package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the process-wide logger. It discards everything until Init is called.
var Logger = zerolog.Nop()

// Options describes the process the logger runs in.
type Options struct {
	Service     string
	Version     string
	Environment string
	// Pretty switches to the human-readable console writer.
	Pretty bool
	// Output defaults to stdout.
	Output io.Writer
}

// Init initializes the global logger
func Init(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	fields := zerolog.New(output).
		Level(zerolog.TraceLevel).
		With().
		Timestamp().
		Str("service", opts.Service)
	if opts.Version != "" {
		fields = fields.Str("version", opts.Version)
	}
	if opts.Environment != "" {
		fields = fields.Str("environment", opts.Environment)
	}

	Logger = fields.Logger()
	log.Logger = Logger
}

type fieldsKey struct{}

// With returns a copy of ctx that carries an extra log field. Every logger
// derived from the returned context through WithContext includes it, so
// request_id, actor_id, product_id and job_id are set once at the edge.
func With(ctx context.Context, key, value string) context.Context {
	if value == "" {
		return ctx
	}
	parent, _ := ctx.Value(fieldsKey{}).([][2]string)
	fields := make([][2]string, 0, len(parent)+1)
	for _, f := range parent {
		if f[0] != key {
			fields = append(fields, f)
		}
	}
	fields = append(fields, [2]string{key, value})
	return context.WithValue(ctx, fieldsKey{}, fields)
}

// Field returns a field previously attached with With.
func Field(ctx context.Context, key string) string {
	fields, _ := ctx.Value(fieldsKey{}).([][2]string)
	for _, f := range fields {
		if f[0] == key {
			return f[1]
		}
	}
	return ""
}

// WithContext returns a logger with trace information and the context fields
func WithContext(ctx context.Context) *zerolog.Logger {
	lc := Logger.With()

	if fields, ok := ctx.Value(fieldsKey{}).([][2]string); ok {
		for _, f := range fields {
			lc = lc.Str(f[0], f[1])
		}
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		lc = lc.
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}

	logger := lc.Logger()
	return &logger
}

func Info(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Info()
}

func Error(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Error()
}

func Debug(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Debug()
}

func Warn(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).Warn()
}

// Critical logs at the highest severity without terminating the process.
// Ledger/movement divergence is reported through here.
func Critical(ctx context.Context) *zerolog.Event {
	return WithContext(ctx).WithLevel(zerolog.FatalLevel).Bool("operator_attention", true)
}

// SetLevel sets the global log level. Unknown names fall back to info and
// are reported through the returned error.
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}
