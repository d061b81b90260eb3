package authkit

import "time"

// ServerConfig configures the two token issuers and error verbosity.
// Access and refresh tokens are signed with independent secrets so a
// compromise of one class does not compromise the other.
type ServerConfig struct {
	Issuer            string
	AccessSigningKey  []byte
	RefreshSigningKey []byte
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	DevErrors         bool
}
