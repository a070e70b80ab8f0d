package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// MaxStreamKeyLength bounds the opaque credential sent as a bearer token.
const MaxStreamKeyLength = 256

var (
	// SessionIDRegex validates session ID format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// CodecNameRegex matches the short codec names used in profiles, e.g. "h264"
	CodecNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// ValidateStreamKey checks the key is usable as a bearer token. The content is
// opaque and not otherwise inspected.
func ValidateStreamKey(key string) error {
	if key == "" {
		return fmt.Errorf("stream key is required")
	}
	if len(key) > MaxStreamKeyLength {
		return fmt.Errorf("stream key is too long (max %d bytes)", MaxStreamKeyLength)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("stream key must not contain whitespace")
	}
	return nil
}

// ValidateSessionID validates session ID
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("session ID is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateCodecName validates a codec profile name. Empty is allowed and means
// "keep the engine's default ordering".
func ValidateCodecName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > 32 {
		return fmt.Errorf("codec name is too long (max 32 characters)")
	}
	if !CodecNameRegex.MatchString(name) {
		return fmt.Errorf("invalid codec name %q", name)
	}
	return nil
}

// ValidateURL validates a signaling base URL
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateUDPAddress validates a host:port pair for an RTP listener
func ValidateUDPAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	i := strings.LastIndex(addr, ":")
	if i < 0 || i == len(addr)-1 {
		return fmt.Errorf("address %q must be host:port", addr)
	}
	return nil
}
