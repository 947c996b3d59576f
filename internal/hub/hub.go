package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duetlabs/duet/internal/room"
)

var ErrNotFound = errors.New("session not found")
var ErrAlreadyFull = errors.New("session already full")
var ErrCodeExhausted = errors.New("invite code space exhausted")

// Session is the authoritative pairing record. GuestID is set exactly once,
// when the invite code is redeemed; nothing else mutates a session. On idle
// reclamation the registry entry is dropped entirely and only the durable
// store keeps the (now inactive) record.
type Session struct {
	ID         string
	InviteCode string
	HostID     string
	GuestID    string
	Active     bool
}

// Archiver persists session records out-of-band. The live event path never
// waits on it.
type Archiver interface {
	ArchiveSession(id, inviteCode, hostID, guestID string, active bool)
}

type Msg interface{ isHubMsg() }

type SessionResult struct {
	Session Session
	Err     error
}

type CreateSession struct {
	HostID string
	Reply  chan SessionResult
}

type RedeemCode struct {
	Code      string
	GuestID   string
	GuestName string
	Reply     chan SessionResult
}

type GetSession struct {
	ID    string
	Reply chan SessionResult
}

type GetRoom struct {
	SessionID string
	Reply     chan *room.Room
}

// RegisterPresence joins a connection to its participant's personal
// notification channel, independent of any session room.
type RegisterPresence struct{ Conn *room.Conn }

type UnregisterPresence struct{ Conn *room.Conn }

// NotifyParticipant is direct delivery: every live connection of the
// participant receives the event, whether or not it has bound to a room.
type NotifyParticipant struct {
	ParticipantID string
	Event         room.Outbound
}

type ShutdownHub struct{}

type roomReaped struct{ SessionID string }

func (CreateSession) isHubMsg()      {}
func (RedeemCode) isHubMsg()         {}
func (GetSession) isHubMsg()         {}
func (GetRoom) isHubMsg()            {}
func (RegisterPresence) isHubMsg()   {}
func (UnregisterPresence) isHubMsg() {}
func (NotifyParticipant) isHubMsg()  {}
func (ShutdownHub) isHubMsg()        {}
func (roomReaped) isHubMsg()         {}

type Config struct {
	// IdleTimeout is how long a session may sit with zero bound
	// connections before its room is reclaimed.
	IdleTimeout time.Duration
	// SweepEvery is the janitor interval.
	SweepEvery time.Duration
	Recorder   room.ActivityRecorder
	Archiver   Archiver
	Log        *zap.Logger
}

// Hub owns the cross-session structures: the session registry, the rooms,
// and the participant presence directory. All of them are touched only on
// the hub's own goroutine; per-session event traffic never passes through
// here.
type Hub struct {
	inbox    chan Msg
	sessions map[string]*Session
	byCode   map[string]string // invite code -> session id, active only
	rooms    map[string]*room.Room
	presence map[string]map[*room.Conn]struct{}

	cfg Config
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, cfg Config) *Hub {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]*Session),
		byCode:   make(map[string]string),
		rooms:    make(map[string]*room.Room),
		presence: make(map[string]map[*room.Conn]struct{}),
		cfg:      cfg,
		log:      cfg.Log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	ticker := time.NewTicker(h.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-ticker.C:
			h.sweep()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.createSession(msg.HostID)

			case RedeemCode:
				msg.Reply <- h.redeemCode(msg.Code, msg.GuestID, msg.GuestName)

			case GetSession:
				if s, ok := h.sessions[msg.ID]; ok {
					msg.Reply <- SessionResult{Session: *s}
				} else {
					msg.Reply <- SessionResult{Err: ErrNotFound}
				}

			case GetRoom:
				msg.Reply <- h.rooms[msg.SessionID] // may be nil

			case RegisterPresence:
				pid := msg.Conn.ParticipantID
				if h.presence[pid] == nil {
					h.presence[pid] = make(map[*room.Conn]struct{})
				}
				h.presence[pid][msg.Conn] = struct{}{}

			case UnregisterPresence:
				pid := msg.Conn.ParticipantID
				delete(h.presence[pid], msg.Conn)
				if len(h.presence[pid]) == 0 {
					delete(h.presence, pid)
				}

			case NotifyParticipant:
				h.notify(msg.ParticipantID, msg.Event)

			case roomReaped:
				h.finishReap(msg.SessionID)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		select {
		case rm.Inbox() <- room.Shutdown{}:
		case <-rm.Done():
		}
	}
	clear(h.rooms)
	h.cancel()
}

func (h *Hub) createSession(hostID string) SessionResult {
	code, err := h.uniqueCode()
	if err != nil {
		return SessionResult{Err: err}
	}

	s := &Session{
		ID:         uuid.NewString(),
		InviteCode: code,
		HostID:     hostID,
		Active:     true,
	}
	h.sessions[s.ID] = s
	h.byCode[code] = s.ID
	h.rooms[s.ID] = room.New(h.ctx, s.ID, hostID, "", h.cfg.Recorder, h.log)

	h.archive(*s)
	h.log.Info("session created", zap.String("session_id", s.ID), zap.String("host_id", hostID))
	return SessionResult{Session: *s}
}

func (h *Hub) redeemCode(code, guestID, guestName string) SessionResult {
	id, ok := h.byCode[code]
	if !ok {
		return SessionResult{Err: ErrNotFound}
	}
	s := h.sessions[id]

	// The host re-redeeming their own code is a reconnect race, not an
	// error: return the session unchanged.
	if guestID == s.HostID {
		return SessionResult{Session: *s}
	}
	if s.GuestID != "" {
		return SessionResult{Err: ErrAlreadyFull}
	}

	s.GuestID = guestID
	if rm := h.rooms[id]; rm != nil {
		select {
		case rm.Inbox() <- room.SetGuest{GuestID: guestID}:
		case <-rm.Done():
		}
	}

	// The host may not have bound to the session room yet, so this goes
	// over the personal channel.
	h.notify(s.HostID, room.PartnerJoined{ParticipantID: guestID, Username: guestName})

	h.archive(*s)
	h.log.Info("invite redeemed", zap.String("session_id", id), zap.String("guest_id", guestID))
	return SessionResult{Session: *s}
}

func (h *Hub) notify(pid string, ev room.Outbound) {
	for c := range h.presence[pid] {
		if !c.Send(ev) {
			delete(h.presence[pid], c)
		}
	}
}

func (h *Hub) archive(s Session) {
	if h.cfg.Archiver == nil {
		return
	}
	go h.cfg.Archiver.ArchiveSession(s.ID, s.InviteCode, s.HostID, s.GuestID, s.Active)
}

// sweep asks each room whether it has been idle past the grace window.
// Replies come back as roomReaped messages so the hub never blocks on a
// room's inbox.
func (h *Hub) sweep() {
	for id, rm := range h.rooms {
		reply := make(chan bool, 1)
		select {
		case rm.Inbox() <- room.ReapIfIdle{IdleFor: h.cfg.IdleTimeout, Reply: reply}:
		default:
			continue // a busy room is not idle
		}
		go func(id string, rm *room.Room) {
			select {
			case reaped := <-reply:
				if !reaped {
					return
				}
			case <-rm.Done():
				// Already shut down; make the registry catch up anyway.
			}
			select {
			case h.inbox <- roomReaped{SessionID: id}:
			case <-h.ctx.Done():
			}
		}(id, rm)
	}
}

func (h *Hub) finishReap(sessionID string) {
	delete(h.rooms, sessionID)
	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)
	delete(h.byCode, s.InviteCode)
	s.Active = false
	h.archive(*s)
	h.log.Info("idle session reclaimed", zap.String("session_id", sessionID))
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

func (h *Hub) uniqueCode() (string, error) {
	// 36^6 codes; a collision loop this long means the space is saturated.
	for attempt := 0; attempt < 1000; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}
