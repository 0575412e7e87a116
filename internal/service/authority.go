package service

import (
	"errors"

	"jamsync/internal/model"
)

var (
	ErrForbidden       = errors.New("not allowed to control this jam")
	ErrJamNotFound     = errors.New("jam not found")
	ErrTrackNotInQueue = errors.New("track not in queue")
	ErrInvalidInput    = errors.New("invalid input")
)

// Authorize reports whether actor may mutate the queue or the clock of a jam:
// the host always may, anyone else only while allow-controls is on.
func Authorize(meta *model.SessionMeta, actorID string) error {
	if meta == nil || actorID == "" {
		return ErrForbidden
	}
	if actorID == meta.HostUserID || meta.AllowControls {
		return nil
	}
	return ErrForbidden
}

// AuthorizeHost reports whether actor may change the jam's settings.
func AuthorizeHost(meta *model.SessionMeta, actorID string) error {
	if meta == nil || actorID == "" || actorID != meta.HostUserID {
		return ErrForbidden
	}
	return nil
}
