package core

import (
	"time"

	manifest "github.com/joeydtaylor/steeze-tokenproxy/pkg/manifest"
	httpx "github.com/joeydtaylor/steeze-tokenproxy/pkg/transport/httpx"
)

// ClientOptions maps the manifest's outbound settings onto the shared client.
func ClientOptions(cfg manifest.Config) httpx.ClientOptions {
	connect := cfg.Client.ConnectTimeoutMS
	if connect == 0 {
		connect = manifest.DefaultConnectTimeoutMS
	}
	total := cfg.Client.TimeoutMS
	if total == 0 {
		total = manifest.DefaultTimeoutMS
	}
	port := cfg.ProxyPort
	if port == 0 {
		port = manifest.DefaultProxyPort
	}
	return httpx.ClientOptions{
		ConnectTimeout: time.Duration(connect) * time.Millisecond,
		Timeout:        time.Duration(total) * time.Millisecond,
		ProxyHost:      cfg.ProxyHost,
		ProxyPort:      port,
		EnableHTTP2:    cfg.EnableHTTP2,
		TrustStore:     cfg.Client.TrustStore,
		VerifyHostname: cfg.Client.VerifiesHostname(),
	}
}
