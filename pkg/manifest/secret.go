package manifest

const redacted = "******"

// Secret holds a sensitive configuration value. Every formatting path
// (fmt verbs, text/JSON marshalling, zap) prints a mask; Value returns the
// raw string.
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) IsZero() bool { return s == "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Secret) UnmarshalText(b []byte) error {
	*s = Secret(b)
	return nil
}
