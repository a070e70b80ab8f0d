package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrNoLocalTracks   = errors.New("media source has no audio or video track")
	ErrNotSupported    = errors.New("operation not supported by engine")
	ErrStaleAnswer     = errors.New("answer arrived after session left awaiting_answer")
	ErrInvalidSDP      = errors.New("invalid session description")
)
