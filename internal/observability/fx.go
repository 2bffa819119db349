package observability

import (
	"github.com/mtandao/netbill/internal/observability/logger"
	"github.com/mtandao/netbill/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(logger.New),
	fx.Provide(func() *prometheus.Registry { return prometheus.NewRegistry() }),
	fx.Provide(func(reg *prometheus.Registry) prometheus.Registerer { return reg }),
	fx.Provide(metrics.NewHTTPMetrics),
	fx.Provide(metrics.NewSchedulerMetrics),
)
