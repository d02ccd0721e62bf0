package logger

import "go.uber.org/zap"

func ProvideLoggerMiddleware() *Middleware { return NewMiddleware(NewAccessLog(AccessLogName)) }
func ProvideLogger() *zap.Logger           { return NewLog(SystemLogName) }
