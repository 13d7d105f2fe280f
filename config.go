package rawrcache

import (
	"log/slog"

	"github.com/Keksclan/rawrcache/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.MiddlewareBuilder
	logger      *slog.Logger
	gatherer    prometheus.Gatherer
}

func defaultConfig() config {
	return config{
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
}
