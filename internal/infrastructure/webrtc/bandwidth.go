package webrtc

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"

	"beamline/internal/core/domain"
)

const (
	bandwidthTIAS = "TIAS"
	bandwidthAS   = "AS"
)

// applyBandwidth writes a per media section bitrate cap into an SDP. TIAS
// carries bits per second, AS the same cap in kilobits per second for peers
// that ignore TIAS. Sections of a kind without a cap are left untouched.
func applyBandwidth(raw string, caps map[domain.MediaKind]uint64) (string, error) {
	if len(caps) == 0 {
		return raw, nil
	}

	desc, err := parseSDP(raw)
	if err != nil {
		return "", err
	}

	changed := false
	for _, md := range desc.MediaDescriptions {
		bps := caps[domain.MediaKind(md.MediaName.Media)]
		if bps == 0 {
			continue
		}

		kept := md.Bandwidth[:0]
		for _, b := range md.Bandwidth {
			if b.Type != bandwidthTIAS && b.Type != bandwidthAS {
				kept = append(kept, b)
			}
		}
		kbps := bps / 1000
		if kbps == 0 {
			kbps = 1
		}
		md.Bandwidth = append(kept,
			sdp.Bandwidth{Type: bandwidthTIAS, Bandwidth: bps},
			sdp.Bandwidth{Type: bandwidthAS, Bandwidth: kbps},
		)
		changed = true
	}
	if !changed {
		return raw, nil
	}

	out, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal sdp: %w", err)
	}
	return string(out), nil
}

// parseSDP unmarshals a session description. The sdp package reads text
// without a version line as an empty session, so the v= and o= lines are
// required here.
func parseSDP(raw string) (*sdp.SessionDescription, error) {
	if !strings.HasPrefix(raw, "v=0") {
		return nil, fmt.Errorf("%w: missing version line", domain.ErrInvalidSDP)
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSDP, err)
	}
	if desc.Origin.NetworkType == "" || desc.Origin.UnicastAddress == "" {
		return nil, fmt.Errorf("%w: missing origin line", domain.ErrInvalidSDP)
	}
	return &desc, nil
}

// validateSDP checks that a remote description parses before it reaches pion.
func validateSDP(raw string) error {
	desc, err := parseSDP(raw)
	if err != nil {
		return err
	}
	if len(desc.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media sections", domain.ErrInvalidSDP)
	}
	return nil
}
