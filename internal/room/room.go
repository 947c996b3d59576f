package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duetlabs/duet/internal/game"
	"github.com/duetlabs/duet/pkg/types"
)

// ErrForbidden rejects a bind from a participant not bound to the session.
var ErrForbidden = errors.New("participant not in session")

// ErrClosed answers messages that reach a room after it has shut down; the
// caller should re-resolve the session through the registry.
var ErrClosed = errors.New("room closed")

// Conn is one live connection handle. A participant may hold more than one
// (two open tabs); each receives a mirrored copy of every delivery. The
// outbox channel itself is never closed: a room and the presence directory
// both deliver into it, so teardown is signalled through Close instead.
type Conn struct {
	ID            string
	ParticipantID string
	Outbox        chan Outbound

	closed    chan struct{}
	closeOnce sync.Once
}

func NewConn(id, participantID string) *Conn {
	return &Conn{
		ID:            id,
		ParticipantID: participantID,
		Outbox:        make(chan Outbound, 16),
		closed:        make(chan struct{}),
	}
}

// Close marks the connection dead. Safe to call from any goroutine, any
// number of times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Closed reports connection teardown to the transport's writer loop.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Send delivers without blocking. It reports false for a dead or saturated
// connection; the caller decides whether that means dropping the handle.
func (c *Conn) Send(ev Outbound) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.Outbox <- ev:
		return true
	default:
		return false
	}
}

// ActivityRecorder receives fire-and-forget zone visit records. Nil is a
// valid recorder.
type ActivityRecorder interface {
	LogActivity(participantID, zone, activity string)
}

type Msg interface{ isRoomMsg() }

// Bind registers a connection in the session's broadcast group. The reply
// carries ErrForbidden if the participant is not bound to the session.
type Bind struct {
	Conn  *Conn
	Reply chan error
}

type Detach struct{ Conn *Conn }

// SetGuest is sent by the registry when the invite code is redeemed.
type SetGuest struct{ GuestID string }

type FromClient struct {
	From  *Conn
	Event Event
}

type GetSnapshot struct{ Reply chan types.Snapshot }

// ReapIfIdle shuts the room down iff it has had no bound connections for at
// least IdleFor. The reply reports whether the room reaped itself.
type ReapIfIdle struct {
	IdleFor time.Duration
	Reply   chan bool
}

type Shutdown struct{}

func (Bind) isRoomMsg()        {}
func (Detach) isRoomMsg()      {}
func (SetGuest) isRoomMsg()    {}
func (FromClient) isRoomMsg()  {}
func (GetSnapshot) isRoomMsg() {}
func (ReapIfIdle) isRoomMsg()  {}
func (Shutdown) isRoomMsg()    {}

// Room owns every synchronized dimension of one session. All mutations run
// on the room's own goroutine, so two near-simultaneous events from the two
// participants are applied in a strict observable order. Rooms never share
// mutable state with each other.
type Room struct {
	inbox chan Msg

	sessionID string
	hostID    string
	guestID   string

	version  int
	zones    map[string]string
	playback types.Playback
	queue    []types.Track
	game     game.State

	conns      map[*Conn]struct{}
	emptySince time.Time

	recorder ActivityRecorder
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, sessionID, hostID, guestID string, recorder ActivityRecorder, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:      make(chan Msg, 64),
		sessionID:  sessionID,
		hostID:     hostID,
		guestID:    guestID,
		zones:      make(map[string]string),
		conns:      make(map[*Conn]struct{}),
		emptySince: time.Now(),
		recorder:   recorder,
		log:        log.Named("room").With(zap.String("session_id", sessionID)),
		ctx:        ctx,
		cancel:     cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down. Senders select on it so a
// message racing the reaper cannot strand them waiting for a reply.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	defer r.drain()
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			if _, ok := m.(Shutdown); ok {
				r.shutdown()
				return
			}
			if done := r.handle(m); done {
				return
			}
		}
	}
}

// handle dispatches one message, recovering from panics so a single bad
// event cannot take down the session or its peer.
func (r *Room) handle(m Msg) (done bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("recovered from panic in room handler", zap.Any("panic", p))
		}
	}()

	switch msg := m.(type) {
	case Bind:
		msg.Reply <- r.bind(msg.Conn)

	case Detach:
		r.detach(msg.Conn)

	case SetGuest:
		if r.guestID == "" {
			r.guestID = msg.GuestID
		}

	case FromClient:
		r.route(msg.From, msg.Event)

	case GetSnapshot:
		msg.Reply <- r.snapshot()

	case ReapIfIdle:
		if len(r.conns) == 0 && time.Since(r.emptySince) >= msg.IdleFor {
			msg.Reply <- true
			r.shutdown()
			return true
		}
		msg.Reply <- false
	}
	return false
}

// drain answers whatever was already buffered when the loop exited, so a
// caller that won the race against the reaper gets a reply, not silence.
func (r *Room) drain() {
	for {
		select {
		case m := <-r.inbox:
			switch msg := m.(type) {
			case Bind:
				msg.Reply <- ErrClosed
			case GetSnapshot:
				msg.Reply <- r.snapshot()
			case ReapIfIdle:
				msg.Reply <- false
			}
		default:
			return
		}
	}
}

func (r *Room) shutdown() {
	for c := range r.conns {
		c.Close()
		delete(r.conns, c)
	}
	r.cancel()
}

func (r *Room) bind(c *Conn) error {
	pid := c.ParticipantID
	if pid != r.hostID && (r.guestID == "" || pid != r.guestID) {
		return ErrForbidden
	}

	r.conns[c] = struct{}{}

	// Point-in-time resync: a reconnecting client resumes from this
	// snapshot, never from a replayed event log.
	r.deliver(c, SnapshotEvent{State: r.snapshot()})

	r.broadcast(c, PartnerConnected{Version: r.version, ParticipantID: pid})
	r.maybeInitGame()
	return nil
}

func (r *Room) detach(c *Conn) {
	if _, ok := r.conns[c]; !ok {
		return
	}
	delete(r.conns, c)
	c.Close()

	if !r.participantBound(c.ParticipantID) {
		r.broadcast(nil, PartnerDisconnected{Version: r.version, ParticipantID: c.ParticipantID})
	}
	if len(r.conns) == 0 {
		r.emptySince = time.Now()
	}
}

func (r *Room) participantBound(pid string) bool {
	for c := range r.conns {
		if c.ParticipantID == pid {
			return true
		}
	}
	return false
}

// maybeInitGame lazily starts the game the first time both participants are
// bound. First mover is derived from session roles, not connection arrival
// order, so a reconnect race cannot change who opens.
func (r *Room) maybeInitGame() {
	if r.game.Status != game.StatusWaiting || r.guestID == "" {
		return
	}
	if !r.participantBound(r.hostID) || !r.participantBound(r.guestID) {
		return
	}

	r.game = game.New(r.hostID, r.guestID)
	r.version++

	r.sendToParticipant(r.hostID, GameInit{Version: r.version, Symbol: game.SymbolX, YourTurn: true})
	r.sendToParticipant(r.guestID, GameInit{Version: r.version, Symbol: game.SymbolO, YourTurn: false})
	r.log.Info("game initialized", zap.String("first_mover", r.hostID))
}

// route is the event router: validate, mutate, broadcast. In-session races
// (out-of-turn moves, stale indices, events from already-detached
// connections) are dropped silently; the next authoritative broadcast or
// snapshot corrects the client's view.
func (r *Room) route(from *Conn, ev Event) {
	if _, ok := r.conns[from]; !ok {
		return
	}
	pid := from.ParticipantID

	switch e := ev.(type) {
	case ZoneChange:
		r.zones[pid] = e.Zone
		r.version++
		r.broadcast(from, ZoneChanged{Version: r.version, ParticipantID: pid, Zone: e.Zone})
		if r.recorder != nil {
			go r.recorder.LogActivity(pid, e.Zone, "zone-change")
		}

	case PlaybackPlay:
		next := types.Playback{TrackID: e.TrackID, Playing: true, Position: e.Position, UpdatedBy: pid}
		if samePlayback(r.playback, next) {
			return // idempotent replay
		}
		r.playback = next
		r.version++
		r.broadcast(from, PlaybackPlayed{Version: r.version, ParticipantID: pid, TrackID: e.TrackID, Position: e.Position})

	case PlaybackPause:
		next := types.Playback{TrackID: r.playback.TrackID, Playing: false, Position: e.Position, UpdatedBy: pid}
		if samePlayback(r.playback, next) {
			return
		}
		r.playback = next
		r.version++
		r.broadcast(from, PlaybackPaused{Version: r.version, ParticipantID: pid, Position: e.Position})

	case QueueEnqueue:
		r.queue = append(r.queue, e.Track)
		r.version++
		r.broadcast(from, QueueEnqueued{Version: r.version, ParticipantID: pid, Track: e.Track})

	case QueueRemove:
		// Best-effort: a racing removal may leave the index stale. Drop it,
		// the queue self-corrects on the next snapshot.
		if e.Index < 0 || e.Index >= len(r.queue) {
			return
		}
		r.queue = append(r.queue[:e.Index], r.queue[e.Index+1:]...)
		r.version++
		r.broadcast(from, QueueRemoved{Version: r.version, ParticipantID: pid, Index: e.Index})

	case QueueSkip:
		if len(r.queue) == 0 {
			r.playback = types.Playback{Playing: false, UpdatedBy: pid}
			r.version++
			r.broadcast(nil, PlaybackStopped{Version: r.version, ParticipantID: pid})
			return
		}
		head := r.queue[0]
		r.queue = r.queue[1:]
		r.playback = types.Playback{TrackID: head.ID, Playing: true, UpdatedBy: pid}
		r.version++
		// The head resolution is authoritative, so the skipper hears it too.
		r.broadcast(nil, PlaybackPlayed{Version: r.version, ParticipantID: pid, TrackID: head.ID, Track: &head})

	case GameMove:
		events, newState, err := game.Apply(r.game, game.Command{Type: game.CmdMove, PlayerID: pid, Slot: e.Slot})
		if err != nil {
			r.log.Debug("dropped game move", zap.String("participant_id", pid), zap.Int("slot", e.Slot), zap.Error(err))
			return
		}
		r.game = newState
		r.version++

		out := MoveApplied{Version: r.version, Slot: e.Slot, Symbol: newState.SymbolOf(pid), NextTurn: newState.Turn}
		if game.ContainsEvent(events, game.EvtConcluded) {
			out.Winner = newState.Winner
		}
		// Both clients render the authoritative move, mover included.
		r.broadcast(nil, out)

	case GameReset:
		_, newState, err := game.Apply(r.game, game.Command{Type: game.CmdReset})
		if err != nil {
			return
		}
		r.game = newState
		r.version++
		r.broadcast(nil, GameWasReset{Version: r.version, FirstMover: newState.Turn})
	}
}

func samePlayback(a, b types.Playback) bool {
	return a.TrackID == b.TrackID && a.Playing == b.Playing && a.Position == b.Position
}

func (r *Room) snapshot() types.Snapshot {
	zones := make(map[string]string, len(r.zones))
	for k, v := range r.zones {
		zones[k] = v
	}
	queue := make([]types.Track, len(r.queue))
	copy(queue, r.queue)

	snap := types.Snapshot{
		SessionID: r.sessionID,
		Version:   r.version,
		Zones:     zones,
		Playback:  r.playback,
		Queue:     queue,
	}
	if r.game.Status != game.StatusWaiting {
		gv := &types.GameView{
			Players: r.game.Players,
			Turn:    r.game.Turn,
			Winner:  r.game.Winner,
		}
		for i, s := range r.game.Board {
			gv.Board[i] = string(s)
		}
		snap.Game = gv
	}
	return snap
}

// broadcast fans out to every bound connection except exclude. Delivery is
// fire-and-forget: a connection whose outbox is full is dropped on the spot
// rather than stalling the room.
func (r *Room) broadcast(exclude *Conn, ev Outbound) {
	for c := range r.conns {
		if c == exclude {
			continue
		}
		r.deliver(c, ev)
	}
}

func (r *Room) sendToParticipant(pid string, ev Outbound) {
	for c := range r.conns {
		if c.ParticipantID == pid {
			r.deliver(c, ev)
		}
	}
}

func (r *Room) deliver(c *Conn, ev Outbound) {
	if !c.Send(ev) {
		r.log.Warn("dropping slow connection", zap.String("conn_id", c.ID), zap.String("participant_id", c.ParticipantID))
		delete(r.conns, c)
		c.Close()
	}
}
