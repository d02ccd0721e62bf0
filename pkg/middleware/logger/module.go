package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(ProvideLoggerMiddleware, ProvideLogger),
	fx.Invoke(syncOnStop),
)

// syncOnStop flushes the system and access logs when the app stops.
// Sync on a terminal stdout reports EINVAL, so errors are dropped.
func syncOnStop(lc fx.Lifecycle, zl *zap.Logger, mw *Middleware) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = zl.Sync()
			_ = mw.log.Sync()
			return nil
		},
	})
}
