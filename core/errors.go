package core

import "errors"

var (
	ErrNilPeer             = errors.New("nil multi-link peer")
	ErrLinkPeerNotFound    = errors.New("link peer not found")
	ErrLinkPeerExists      = errors.New("link peer already attached")
	ErrLinkPeerBadInput    = errors.New("invalid link peer")
	ErrLinkPeerTableFull   = errors.New("link peer table full")
	ErrMigrationInProgress = errors.New("primary migration already in progress")
	ErrNoMigration         = errors.New("no primary migration in progress")
	ErrInvalidPSOC         = errors.New("invalid psoc")
)
