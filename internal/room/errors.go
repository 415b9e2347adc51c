package room

import "errors"

var (
	// ErrNoRoomID means no room identifier was supplied. Surfaced at
	// the lifecycle boundary before any session exists.
	ErrNoRoomID = errors.New("no room identifier supplied")

	// ErrAlreadyJoined means this manager already owns a session.
	ErrAlreadyJoined = errors.New("already in a room")
)
