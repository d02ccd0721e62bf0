package core

import (
	"net/http"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/logger"
	httpx "github.com/joeydtaylor/steeze-tokenproxy/pkg/transport/httpx"
)

type BuildDeps struct {
	LogMW   *logger.Middleware
	Metrics http.Handler
	Broker  func(http.Handler) http.Handler
	Router  httpx.Router
}
