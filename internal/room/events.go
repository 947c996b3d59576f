package room

import (
	"github.com/duetlabs/duet/internal/game"
	"github.com/duetlabs/duet/pkg/types"
)

// Event is the closed set of inbound client events a room can route. The
// transport maps wire frames onto exactly one of these variants and rejects
// anything it does not recognize, so handlers never sniff payload fields.
type Event interface{ isEvent() }

type ZoneChange struct{ Zone string }

type PlaybackPlay struct {
	TrackID  string
	Position float64
}

type PlaybackPause struct{ Position float64 }

type QueueEnqueue struct{ Track types.Track }

type QueueRemove struct{ Index int }

type QueueSkip struct{}

type GameMove struct{ Slot int }

type GameReset struct{}

func (ZoneChange) isEvent()    {}
func (PlaybackPlay) isEvent()  {}
func (PlaybackPause) isEvent() {}
func (QueueEnqueue) isEvent()  {}
func (QueueRemove) isEvent()   {}
func (QueueSkip) isEvent()     {}
func (GameMove) isEvent()      {}
func (GameReset) isEvent()     {}

// Outbound is the closed set of events a room delivers to connections.
// Version is the room's sequence at the time the event was emitted;
// presence events carry the current version without consuming one.
type Outbound interface{ isOutbound() }

type SnapshotEvent struct{ State types.Snapshot }

type PartnerConnected struct {
	Version       int
	ParticipantID string
}

type PartnerDisconnected struct {
	Version       int
	ParticipantID string
}

// PartnerJoined is delivered directly to a participant's personal channel,
// not through a session room: the host must learn about a redeemed invite
// even before their client has bound to the session.
type PartnerJoined struct {
	ParticipantID string
	Username      string
}

// GameInit is personalized per participant, so it travels by direct
// delivery rather than session broadcast.
type GameInit struct {
	Version  int
	Symbol   game.Symbol
	YourTurn bool
}

type MoveApplied struct {
	Version  int
	Slot     int
	Symbol   game.Symbol
	NextTurn string
	Winner   string
}

type GameWasReset struct {
	Version    int
	FirstMover string
}

type ZoneChanged struct {
	Version       int
	ParticipantID string
	Zone          string
}

type PlaybackPlayed struct {
	Version       int
	ParticipantID string
	TrackID       string
	Position      float64
	Track         *types.Track
}

type PlaybackPaused struct {
	Version       int
	ParticipantID string
	Position      float64
}

type PlaybackStopped struct {
	Version       int
	ParticipantID string
}

type QueueEnqueued struct {
	Version       int
	ParticipantID string
	Track         types.Track
}

type QueueRemoved struct {
	Version       int
	ParticipantID string
	Index         int
}

func (SnapshotEvent) isOutbound()       {}
func (PartnerConnected) isOutbound()    {}
func (PartnerDisconnected) isOutbound() {}
func (PartnerJoined) isOutbound()       {}
func (GameInit) isOutbound()            {}
func (MoveApplied) isOutbound()         {}
func (GameWasReset) isOutbound()        {}
func (ZoneChanged) isOutbound()         {}
func (PlaybackPlayed) isOutbound()      {}
func (PlaybackPaused) isOutbound()      {}
func (PlaybackStopped) isOutbound()     {}
func (QueueEnqueued) isOutbound()       {}
func (QueueRemoved) isOutbound()        {}
