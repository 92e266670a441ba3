package utils

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// IsAbsoluteURI reports whether content is nothing but one well-formed
// absolute URI with a host, e.g. a bare image or video link.
func IsAbsoluteURI(content string) bool {
	raw := strings.TrimSpace(content)
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return false
	}

	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return false
	}
	return true
}

// MessageLink builds the jump link for a guild message.
func MessageLink(guildID, channelID, messageID string) string {
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}
