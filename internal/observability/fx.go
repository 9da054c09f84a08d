package observability

import (
	"github.com/draftworks/meridian/internal/config"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLogger,
		NewMetrics,
		newTracerProvider,
	),
	fx.Invoke(ensureTracerProvider),
)

// ensureTracerProvider forces the provider to be constructed even though no
// component depends on it directly; construction installs the globals.
func ensureTracerProvider(_ *sdktrace.TracerProvider) {}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return NewLogger(cfg.LogLevel)
}
