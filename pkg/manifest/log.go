package manifest

import "go.uber.org/zap/zapcore"

// MarshalLogObject renders the manifest for the registration log. Passwords
// are reduced to a set/unset marker.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("enabled", c.Enabled)
	enc.AddString("certFilename", c.CertFilename)
	enc.AddString("certPassword", c.CertPassword.String())
	if c.ProxyHost != "" {
		enc.AddString("proxyHost", c.ProxyHost)
		enc.AddInt("proxyPort", c.ProxyPort)
	}
	enc.AddBool("enableHttp2", c.EnableHTTP2)
	return enc.AddArray("pathPrefixAuths", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for _, p := range c.PathPrefixAuths {
			if err := ae.AppendObject(p); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (p PathPrefixAuth) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("pathPrefix", p.PathPrefix)
	enc.AddString("serviceHost", p.ServiceHost)
	enc.AddString("tokenUrl", p.TokenURL)
	enc.AddString("authIssuer", p.AuthIssuer)
	enc.AddString("authSubject", p.AuthSubject)
	enc.AddString("authAudience", p.AuthAudience)
	enc.AddInt("tokenTtl", p.TokenTTL)
	enc.AddString("certFilename", p.CertFilename)
	enc.AddString("certPassword", p.CertPassword.String())
	return nil
}
