package main

import (
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/serverfx"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		serverfx.Module(serverfx.WithService("tokenproxy")),
		fx.WithLogger(func(zl *zap.Logger) fxevent.Logger { return &fxevent.ZapLogger{Logger: zl.Named("fx")} }),
	).Run()
}
