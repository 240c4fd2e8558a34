package secrets

import "strings"

// Mask returns a masked version of a secret string for safe logging.
// Secrets longer than 8 chars keep their first 4 characters, shorter ones
// become "***".
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..."
}

// MaskDSN masks the credentials of a DSN such as a Sentry DSN
// (https://publickey@o1.ingest.sentry.io/42). The user part goes through
// Mask and any password becomes "***". Strings without credentials are
// returned unchanged.
func MaskDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd == -1 {
		return dsn
	}
	credStart := schemeEnd + 3

	// The last @ wins in case the password contains one
	atIdx := strings.LastIndex(dsn, "@")
	if atIdx < credStart {
		return dsn
	}

	user, _, hasPass := strings.Cut(dsn[credStart:atIdx], ":")
	masked := Mask(user)
	if hasPass {
		masked += ":***"
	}
	return dsn[:credStart] + masked + dsn[atIdx:]
}
