package settings

// DB setting keys editable by staff at runtime.
const (
	// SiteNameKey names the site in outgoing emails.
	SiteNameKey = "SITE_NAME"
	// FrontendURLKey is the base URL used for verification and reset links.
	FrontendURLKey = "FRONTEND_URL"
	// MailFromKey overrides the sender address of outgoing emails.
	MailFromKey = "MAIL_FROM"
)

// knownKeys lists the keys accepted by Upsert.
var knownKeys = map[string]struct{}{
	SiteNameKey:    {},
	FrontendURLKey: {},
	MailFromKey:    {},
}

// IsKnownKey reports whether key is an accepted setting key.
func IsKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}
