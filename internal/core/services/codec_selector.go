package services

import (
	"strings"

	"beamline/internal/core/domain"
)

// SelectCodecPreferences narrows capabilities to the codecs matching profile.
//
// Entries are matched on MIME type "<kind>/<name>" case-insensitively, then on
// the profile token appearing in the fmtp line. When the token filter removes
// everything the MIME-only matches are returned instead. The result preserves
// input order and is empty when nothing matches, in which case the caller must
// leave the engine's default ordering alone.
func SelectCodecPreferences(kind domain.MediaKind, capabilities []domain.CodecCapability, profile domain.CodecProfile) []domain.CodecCapability {
	if profile.Name == "" {
		return nil
	}

	mime := string(kind) + "/" + profile.Name
	var byMime []domain.CodecCapability
	for _, c := range capabilities {
		if strings.EqualFold(c.MimeType, mime) {
			byMime = append(byMime, c)
		}
	}
	if len(byMime) == 0 || profile.ProfileToken == "" {
		return byMime
	}

	var byProfile []domain.CodecCapability
	for _, c := range byMime {
		if strings.Contains(c.SDPFmtpLine, profile.ProfileToken) {
			byProfile = append(byProfile, c)
		}
	}
	if len(byProfile) == 0 {
		return byMime
	}
	return byProfile
}
