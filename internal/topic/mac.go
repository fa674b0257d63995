package topic

import (
	"fmt"
	"strings"
)

// CanonicalizeMAC normalizes a 12-hex-digit MAC address (with or without
// colon separators, either case) to the topic_uuid form used throughout the
// cache: lowercase, colon-separated.
func CanonicalizeMAC(raw string) (string, error) {
	cleaned := strings.ToLower(strings.ReplaceAll(raw, ":", ""))
	if len(cleaned) != 12 {
		return "", fmt.Errorf("mac_address must be 12 hex chars, got %q", raw)
	}
	for _, r := range cleaned {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return "", fmt.Errorf("mac_address contains non-hex character: %q", raw)
		}
	}
	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = cleaned[i*2 : i*2+2]
	}
	return strings.Join(parts, ":"), nil
}
