package signal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bluenviron/gohlslib/pkg/playlist"

	apperrors "beamline/pkg/errors"
)

// Segment is one full media segment of a media playlist.
type Segment struct {
	Sequence uint64
	Duration time.Duration
	URI      string
	Parts    int // LL-HLS partial segments announced for this segment
}

// Playlist is the subset of an LL-HLS media playlist the watcher reports on.
type Playlist struct {
	Version        int
	TargetDuration time.Duration
	PartTarget     time.Duration
	MediaSequence  uint64
	PartHoldBack   time.Duration
	CanBlockReload bool
	Segments       []Segment
	PendingParts   int // parts published after the last full segment
	Ended          bool
}

// Window is the total duration of the segments listed.
func (p *Playlist) Window() time.Duration {
	var d time.Duration
	for _, s := range p.Segments {
		d += s.Duration
	}
	return d
}

// LiveEdgeLag estimates how far behind the live edge a player syncing at
// liveSync would sit: the sync point plus the parts not yet folded into a segment.
func (p *Playlist) LiveEdgeLag(liveSync time.Duration) time.Duration {
	return liveSync + time.Duration(p.PendingParts)*p.PartTarget
}

// FetchPlaylist downloads and parses the playlist at url.
func (c *Client) FetchPlaylist(ctx context.Context, url string) (*Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build playlist request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapSignalingTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperrors.NewSignalingError(resp.StatusCode, string(snippet))
	}

	return ParsePlaylist(resp.Body)
}

// ParsePlaylist reads an HLS media playlist. A multivariant playlist is
// rejected since the watcher polls one rendition.
func ParsePlaylist(r io.Reader) (*Playlist, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxAnswerBody+1))
	if err != nil {
		return nil, apperrors.WrapSignalingTransportError(fmt.Errorf("read playlist: %w", err))
	}
	if len(buf) > maxAnswerBody {
		return nil, apperrors.NewOversizedResponseError(http.StatusOK, maxAnswerBody)
	}

	parsed, err := playlist.Unmarshal(buf)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeSignaling, "invalid playlist", 0)
	}
	media, ok := parsed.(*playlist.Media)
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrCodeSignaling, "not a media playlist", 0)
	}
	return fromMedia(media), nil
}

func fromMedia(m *playlist.Media) *Playlist {
	p := &Playlist{
		Version:        m.Version,
		TargetDuration: time.Duration(m.TargetDuration) * time.Second,
		MediaSequence:  uint64(m.MediaSequence),
		PendingParts:   len(m.Parts),
		Ended:          m.Endlist,
	}
	if m.PartInf != nil {
		p.PartTarget = m.PartInf.PartTarget
	}
	if sc := m.ServerControl; sc != nil {
		p.CanBlockReload = sc.CanBlockReload
		if sc.PartHoldBack != nil {
			p.PartHoldBack = *sc.PartHoldBack
		}
	}

	p.Segments = make([]Segment, 0, len(m.Segments))
	for i, seg := range m.Segments {
		p.Segments = append(p.Segments, Segment{
			Sequence: p.MediaSequence + uint64(i),
			Duration: seg.Duration,
			URI:      seg.URI,
			Parts:    len(seg.Parts),
		})
	}
	return p
}
