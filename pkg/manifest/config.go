package manifest

// Config is the top-level broker manifest.
type Config struct {
	Enabled      bool   `toml:"enabled"`
	CertFilename string `toml:"cert_filename"`
	CertPassword Secret `toml:"cert_password"`

	// Outbound client settings, shared by every prefix.
	ProxyHost   string `toml:"proxy_host"`
	ProxyPort   int    `toml:"proxy_port"` // 0 → 443
	EnableHTTP2 bool   `toml:"enable_http2"`
	Client      Client `toml:"client"`

	PathPrefixAuths []PathPrefixAuth `toml:"path_prefix_auth"`
}

type Client struct {
	ConnectTimeoutMS int    `toml:"connect_timeout_ms"`
	TimeoutMS        int    `toml:"timeout_ms"`
	TrustStore       string `toml:"truststore"`
	VerifyHostname   *bool  `toml:"verify_hostname"` // nil → true
}

// PathPrefixAuth is one credentialed route. Requests whose path starts with
// PathPrefix are forwarded to ServiceHost with a token minted for it.
type PathPrefixAuth struct {
	PathPrefix   string `toml:"path_prefix"`
	ServiceHost  string `toml:"service_host"`
	TokenURL     string `toml:"token_url"`
	AuthIssuer   string `toml:"auth_issuer"`
	AuthSubject  string `toml:"auth_subject"`
	AuthAudience string `toml:"auth_audience"`
	TokenTTL     int    `toml:"token_ttl"` // seconds

	// Optional; inherit the top-level key when empty.
	CertFilename string `toml:"cert_filename"`
	CertPassword Secret `toml:"cert_password"`
}

const (
	DefaultTokenTTL         = 60
	DefaultConnectTimeoutMS = 10_000
	DefaultTimeoutMS        = 30_000
	DefaultProxyPort        = 443
)

// VerifiesHostname reports the effective hostname-verification setting.
func (c Client) VerifiesHostname() bool {
	return c.VerifyHostname == nil || *c.VerifyHostname
}
