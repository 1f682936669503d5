package liveview

import (
	"context"
)

// session status state machine is:
// SessionStatusConnecting
//
//	-> SessionStatusConnected
//	-> SessionStatusDisconnected
//	-> SessionStatusError
//
// connected and disconnected flip back and forth for the lifetime of the
// session handle. error means the session could not be materialized.
type SessionStatus string

const (
	SessionStatusConnecting   SessionStatus = "connecting"
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusError        SessionStatus = "error"
)

func (self SessionStatus) IsConnected() bool {
	switch self {
	case SessionStatusConnected:
		return true
	default:
		return false
	}
}

func (self SessionStatus) IsError() bool {
	switch self {
	case SessionStatusError:
		return true
	default:
		return false
	}
}

type StatusFunction = func(status SessionStatus)

// Session is one collaborative editing session bound to one file.
// The session handle lifetime is owned by the folder that constructed it,
// not by this package. The engine only drives the
// connect/disconnect/readiness/status surface.
type Session interface {
	Path() string

	// resolves once the session is materialized. Fails if the session cannot
	// be materialized, e.g. the path was renamed away mid flight.
	WhenReady(ctx context.Context) error

	Connect()
	Disconnect()

	Status() SessionStatus

	// returns an unsubscribe func
	AddStatusCallback(statusCallback StatusFunction) func()

	// one shot. fires the next time the session becomes connected.
	// returns an unsubscribe func for the case where the event never fires.
	OnceConnected(connectedCallback func()) func()

	ProviderToken(ctx context.Context) (*ProviderToken, error)
}

// Folder is a shared folder collaborator that owns the session handles for
// the files under it.
type Folder interface {
	Path() string

	// resolves or lazily creates the session handle bound to `path`
	GetFile(path string, create bool) (Session, error)

	// resolves with the session handles for the current folder membership
	WhenReady(ctx context.Context) ([]Session, error)

	// idempotent on an already connected folder
	Connect()
}

type MembershipFunction = func(folder Folder)

type FolderProvider interface {
	// the folder whose membership covers `path`, or nil when the path is in
	// no shared folder
	Lookup(path string) Folder

	// fires when a folder's file set changes. returns an unsubscribe func.
	AddMembershipCallback(membershipCallback MembershipFunction) func()
}
