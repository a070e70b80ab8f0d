package ports

import (
	"context"

	"beamline/internal/core/domain"
)

// Signaler performs the single offer/answer POST of WHIP and WHEP.
type Signaler interface {
	Exchange(ctx context.Context, role domain.Role, key domain.StreamKey, offer string) (answer string, err error)
}

type HLSBootstrapper interface {
	RequestHLSSession(ctx context.Context, key domain.StreamKey) (string, error)
	PlaylistURL(sessionID string) string
}
