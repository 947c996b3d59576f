package types

// Track describes one playable media item, as resolved by the search
// proxy and as carried through the shared queue.
type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// ClientMessage is the single inbound websocket frame. Type selects the
// event kind; only the fields for that kind are read, everything else is
// ignored. Unknown types are rejected with an Error frame.
type ClientMessage struct {
	Type     string  `json:"type"`
	Zone     string  `json:"zone,omitempty"`
	TrackID  string  `json:"track_id,omitempty"`
	Position float64 `json:"position,omitempty"`
	Track    *Track  `json:"track,omitempty"`
	Index    int     `json:"index,omitempty"`
	Slot     int     `json:"slot,omitempty"`
}

// Client -> Server types.
const (
	MsgZoneChange    = "ZoneChange"
	MsgPlaybackPlay  = "PlaybackPlay"
	MsgPlaybackPause = "PlaybackPause"
	MsgQueueEnqueue  = "QueueEnqueue"
	MsgQueueRemove   = "QueueRemove"
	MsgQueueSkip     = "QueueSkip"
	MsgGameMove      = "GameMove"
	MsgGameReset     = "GameReset"
)

// ServerMessage is the single outbound websocket frame. Version is the
// room's monotonic sequence at the time the event was applied, so clients
// can discard frames older than their last snapshot.
type ServerMessage struct {
	Type          string    `json:"type"`
	Version       int       `json:"version,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Zone          string    `json:"zone,omitempty"`
	TrackID       string    `json:"track_id,omitempty"`
	Position      float64   `json:"position,omitempty"`
	Track         *Track    `json:"track,omitempty"`
	Index         int       `json:"index,omitempty"`
	Slot          int       `json:"slot,omitempty"`
	Symbol        string    `json:"symbol,omitempty"`
	NextTurn      string    `json:"next_turn,omitempty"`
	Winner        string    `json:"winner,omitempty"`
	YourTurn      bool      `json:"your_turn,omitempty"`
	FirstMover    string    `json:"first_mover,omitempty"`
	Username      string    `json:"username,omitempty"`
	State         *Snapshot `json:"state,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Server -> Client types.
const (
	MsgStateSnapshot       = "StateSnapshot"
	MsgPartnerJoined       = "PartnerJoined"
	MsgPartnerConnected    = "PartnerConnected"
	MsgPartnerDisconnected = "PartnerDisconnected"
	MsgGameInit            = "GameInit"
	MsgMoveApplied         = "MoveApplied"
	MsgGameWasReset        = "GameWasReset"
	MsgZoneChanged         = "ZoneChanged"
	MsgPlaybackPlayed      = "PlaybackPlayed"
	MsgPlaybackPaused      = "PlaybackPaused"
	MsgPlaybackStopped     = "PlaybackStopped"
	MsgQueueEnqueued       = "QueueEnqueued"
	MsgQueueRemoved        = "QueueRemoved"
	MsgError               = "Error"
)

// Snapshot is a point-in-time read of every synchronized dimension of a
// session. It is sent on every bind so a reconnecting client can resume
// without replaying missed events.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Version   int               `json:"version"`
	Zones     map[string]string `json:"zones"`
	Playback  Playback          `json:"playback"`
	Queue     []Track           `json:"queue"`
	Game      *GameView         `json:"game,omitempty"`
}

// Playback is the shared transport checkpoint. Position is only meaningful
// relative to the moment the checkpoint was taken; while Playing is true
// the client extrapolates elapsed time locally.
type Playback struct {
	TrackID   string  `json:"track_id,omitempty"`
	Playing   bool    `json:"playing"`
	Position  float64 `json:"position"`
	UpdatedBy string  `json:"updated_by,omitempty"`
}

// GameView is the wire projection of the turn-based game state.
type GameView struct {
	Players [2]string `json:"players"`
	Board   [9]string `json:"board"`
	Turn    string    `json:"turn,omitempty"`
	Winner  string    `json:"winner,omitempty"`
}
