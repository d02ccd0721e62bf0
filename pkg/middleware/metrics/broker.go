package metrics

import (
	"strconv"
	"time"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
)

// Broker records token refreshes and proxied requests. It satisfies both the
// token cache observer and the broker recorder.
type Broker struct{}

func ProvideBroker() *Broker { return &Broker{} }

func (*Broker) ObserveRefresh(prefix string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = status.KindOf(err).String()
	}
	tokenRefreshTotal.WithLabelValues(prefix, result).Inc()
	tokenRefreshSeconds.WithLabelValues(prefix).Observe(took.Seconds())
}

func (*Broker) ObserveProxied(prefix, method string, code int) {
	proxiedRequestsTotal.WithLabelValues(prefix, method, strconv.Itoa(code)).Inc()
}
