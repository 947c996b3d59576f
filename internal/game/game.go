package game

import "errors"

var ErrNotInProgress = errors.New("game not in progress")
var ErrWrongTurn = errors.New("not your turn")
var ErrSlotOccupied = errors.New("slot already occupied")
var ErrBadSlot = errors.New("slot out of range")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Symbol string

const (
	SymbolNone Symbol = ""
	SymbolX    Symbol = "X"
	SymbolO    Symbol = "O"
)

type Status string

const (
	// StatusWaiting is the zero value so an unstarted State needs no
	// explicit construction.
	StatusWaiting    Status = ""
	StatusInProgress Status = "in_progress"
	StatusConcluded  Status = "concluded"
)

// Draw is the Winner value for a full board with no winning line.
const Draw = "draw"

// State is one session's tic-tac-toe game. Players is fixed at creation:
// Players[0] is the session host and always moves first with X, so that
// reconnect order can never change who opens. The zero State is a game
// still waiting for a second player.
type State struct {
	Players [2]string
	Board   [9]Symbol
	Turn    string
	Winner  string
	Status  Status
}

// New starts a fresh game between host and guest, host to move.
func New(hostID, guestID string) State {
	return State{
		Players: [2]string{hostID, guestID},
		Turn:    hostID,
		Status:  StatusInProgress,
	}
}

// SymbolOf reports the symbol a participant plays, SymbolNone if they are
// not part of this game.
func (s State) SymbolOf(participantID string) Symbol {
	switch participantID {
	case s.Players[0]:
		return SymbolX
	case s.Players[1]:
		return SymbolO
	}
	return SymbolNone
}

func (s State) other(participantID string) string {
	if participantID == s.Players[0] {
		return s.Players[1]
	}
	return s.Players[0]
}

type CommandType string

const (
	CmdMove  CommandType = "Move"
	CmdReset CommandType = "Reset"
)

type Command struct {
	Type     CommandType
	PlayerID string
	Slot     int
}

type EventType string

const (
	EvtMoveApplied EventType = "MoveApplied"
	EvtConcluded   EventType = "Concluded"
	EvtReset       EventType = "Reset"
)

type Event struct {
	Type     EventType
	Slot     int
	Symbol   Symbol
	NextTurn string
	Winner   string
}

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Apply validates cmd against s and returns the events it produces plus the
// next state. On any error the returned state is s unchanged; a concluded
// board stays frozen until an explicit reset.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdMove:
		if s.Status != StatusInProgress {
			return nil, s, ErrNotInProgress
		}
		if cmd.PlayerID != s.Turn {
			return nil, s, ErrWrongTurn
		}
		if cmd.Slot < 0 || cmd.Slot >= len(s.Board) {
			return nil, s, ErrBadSlot
		}
		if s.Board[cmd.Slot] != SymbolNone {
			return nil, s, ErrSlotOccupied
		}

		newState := s
		sym := s.SymbolOf(cmd.PlayerID)
		newState.Board[cmd.Slot] = sym

		if winner := resolve(newState.Board); winner != SymbolNone || full(newState.Board) {
			newState.Status = StatusConcluded
			newState.Turn = ""
			if winner != SymbolNone {
				newState.Winner = cmd.PlayerID
			} else {
				newState.Winner = Draw
			}
			events := []Event{
				{Type: EvtMoveApplied, Slot: cmd.Slot, Symbol: sym},
				{Type: EvtConcluded, Winner: newState.Winner},
			}
			return events, newState, nil
		}

		newState.Turn = s.other(cmd.PlayerID)
		events := []Event{
			{Type: EvtMoveApplied, Slot: cmd.Slot, Symbol: sym, NextTurn: newState.Turn},
		}
		return events, newState, nil

	case CmdReset:
		if s.Status == StatusWaiting {
			return nil, s, ErrNotInProgress
		}
		// Same player order, fresh board, original first mover.
		newState := New(s.Players[0], s.Players[1])
		return []Event{{Type: EvtReset, NextTurn: newState.Turn}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func resolve(board [9]Symbol) Symbol {
	for _, line := range winningLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != SymbolNone && a == b && b == c {
			return a
		}
	}
	return SymbolNone
}

func full(board [9]Symbol) bool {
	for _, s := range board {
		if s == SymbolNone {
			return false
		}
	}
	return true
}
