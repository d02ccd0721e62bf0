// bundlefx/bundlefx.go
package bundlefx

import (
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/metrics"
	"go.uber.org/fx"
)

// Module provided to fx: loggers, access-log middleware, /metrics handler
// and the broker collectors.
var Module = fx.Options(
	logger.Module,
	metrics.Module,
)
