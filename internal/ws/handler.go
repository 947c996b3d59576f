package ws

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/duetlabs/duet/internal/auth"
	"github.com/duetlabs/duet/internal/hub"
	"github.com/duetlabs/duet/internal/room"
	"github.com/duetlabs/duet/pkg/types"
)

const writeTimeout = 3 * time.Second

// Handler upgrades an authenticated request to a session-bound websocket.
// The token travels as a query parameter because browsers cannot set
// headers on websocket upgrades.
func Handler(h *hub.Hub, am *auth.Manager, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}

		pid, err := am.Verify(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		sessReply := make(chan hub.SessionResult, 1)
		h.Inbox() <- hub.GetSession{ID: sessionID, Reply: sessReply}
		res := <-sessReply
		if res.Err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if pid != res.Session.HostID && pid != res.Session.GuestID {
			http.Error(w, "not a session participant", http.StatusForbidden)
			return
		}

		roomReply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{SessionID: sessionID, Reply: roomReply}
		rm := <-roomReply
		if rm == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := room.NewConn(randID(), pid)
		defer c.Close()

		h.Inbox() <- hub.RegisterPresence{Conn: c}
		defer func() { h.Inbox() <- hub.UnregisterPresence{Conn: c} }()

		bindReply := make(chan error, 1)
		select {
		case rm.Inbox() <- room.Bind{Conn: c, Reply: bindReply}:
		case <-rm.Done():
			conn.Close(websocket.StatusTryAgainLater, "session closed")
			return
		}
		var bindErr error
		select {
		case bindErr = <-bindReply:
		case <-rm.Done():
			// The room may have answered just before shutting down.
			select {
			case bindErr = <-bindReply:
			default:
				bindErr = room.ErrClosed
			}
		}
		switch {
		case errors.Is(bindErr, room.ErrForbidden):
			conn.Close(websocket.StatusPolicyViolation, "not a session participant")
			return
		case bindErr != nil:
			conn.Close(websocket.StatusTryAgainLater, "session closed")
			return
		}
		defer func() {
			select {
			case rm.Inbox() <- room.Detach{Conn: c}:
			case <-rm.Done():
			}
		}()

		log.Debug("connection bound",
			zap.String("session_id", sessionID),
			zap.String("participant_id", pid),
			zap.String("conn_id", c.ID))

		// Writer goroutine: drains the outbox until the connection dies.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		writeEvent := func(ev room.Outbound) {
			payload, err := json.Marshal(toServerMessage(ev))
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
			_ = conn.Write(ctx, websocket.MessageText, payload)
			cancel()
		}
		go func() {
			pump(writeCtx, c, writeEvent)
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return // Detach in defer handles the rest
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			ev, ok := toEvent(cm)
			if !ok {
				// Closed vocabulary: unknown kinds are rejected, not guessed at.
				writeError(r.Context(), conn, "unknown type")
				continue
			}

			select {
			case rm.Inbox() <- room.FromClient{From: c, Event: ev}:
			case <-rm.Done():
				return
			}
		}
	}
}

// pump drains the connection's outbox into write. On Closed it flushes what
// is still queued before returning, so events delivered to the outbox just
// ahead of teardown still reach the client.
func pump(ctx context.Context, c *room.Conn, write func(room.Outbound)) {
	for {
		select {
		case ev := <-c.Outbox:
			write(ev)
		case <-c.Closed():
			for {
				select {
				case ev := <-c.Outbox:
					write(ev)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: types.MsgError, Error: msg})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func toEvent(m types.ClientMessage) (room.Event, bool) {
	switch m.Type {
	case types.MsgZoneChange:
		if m.Zone == "" {
			return nil, false
		}
		return room.ZoneChange{Zone: m.Zone}, true
	case types.MsgPlaybackPlay:
		if m.TrackID == "" {
			return nil, false
		}
		return room.PlaybackPlay{TrackID: m.TrackID, Position: m.Position}, true
	case types.MsgPlaybackPause:
		return room.PlaybackPause{Position: m.Position}, true
	case types.MsgQueueEnqueue:
		if m.Track == nil || m.Track.ID == "" {
			return nil, false
		}
		return room.QueueEnqueue{Track: *m.Track}, true
	case types.MsgQueueRemove:
		return room.QueueRemove{Index: m.Index}, true
	case types.MsgQueueSkip:
		return room.QueueSkip{}, true
	case types.MsgGameMove:
		return room.GameMove{Slot: m.Slot}, true
	case types.MsgGameReset:
		return room.GameReset{}, true
	default:
		return nil, false
	}
}

func toServerMessage(ev room.Outbound) types.ServerMessage {
	switch e := ev.(type) {
	case room.SnapshotEvent:
		state := e.State
		return types.ServerMessage{Type: types.MsgStateSnapshot, Version: state.Version, State: &state}
	case room.PartnerJoined:
		return types.ServerMessage{Type: types.MsgPartnerJoined, ParticipantID: e.ParticipantID, Username: e.Username}
	case room.PartnerConnected:
		return types.ServerMessage{Type: types.MsgPartnerConnected, Version: e.Version, ParticipantID: e.ParticipantID}
	case room.PartnerDisconnected:
		return types.ServerMessage{Type: types.MsgPartnerDisconnected, Version: e.Version, ParticipantID: e.ParticipantID}
	case room.GameInit:
		return types.ServerMessage{Type: types.MsgGameInit, Version: e.Version, Symbol: string(e.Symbol), YourTurn: e.YourTurn}
	case room.MoveApplied:
		return types.ServerMessage{Type: types.MsgMoveApplied, Version: e.Version, Slot: e.Slot, Symbol: string(e.Symbol), NextTurn: e.NextTurn, Winner: e.Winner}
	case room.GameWasReset:
		return types.ServerMessage{Type: types.MsgGameWasReset, Version: e.Version, FirstMover: e.FirstMover}
	case room.ZoneChanged:
		return types.ServerMessage{Type: types.MsgZoneChanged, Version: e.Version, ParticipantID: e.ParticipantID, Zone: e.Zone}
	case room.PlaybackPlayed:
		return types.ServerMessage{Type: types.MsgPlaybackPlayed, Version: e.Version, ParticipantID: e.ParticipantID, TrackID: e.TrackID, Position: e.Position, Track: e.Track}
	case room.PlaybackPaused:
		return types.ServerMessage{Type: types.MsgPlaybackPaused, Version: e.Version, ParticipantID: e.ParticipantID, Position: e.Position}
	case room.PlaybackStopped:
		return types.ServerMessage{Type: types.MsgPlaybackStopped, Version: e.Version, ParticipantID: e.ParticipantID}
	case room.QueueEnqueued:
		track := e.Track
		return types.ServerMessage{Type: types.MsgQueueEnqueued, Version: e.Version, ParticipantID: e.ParticipantID, Track: &track}
	case room.QueueRemoved:
		return types.ServerMessage{Type: types.MsgQueueRemoved, Version: e.Version, ParticipantID: e.ParticipantID, Index: e.Index}
	default:
		return types.ServerMessage{Type: types.MsgError, Error: "unmapped event"}
	}
}

// randID is a short connection id for logs; collision only muddies logging.
func randID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(errors.New("crypto/rand unavailable"))
	}
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 8)
	n := binary.BigEndian.Uint64(b[:])
	for i := range out {
		out[i] = charset[n%uint64(len(charset))]
		n /= uint64(len(charset))
	}
	return string(out)
}
