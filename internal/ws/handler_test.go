package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duetlabs/duet/internal/room"
	"github.com/duetlabs/duet/pkg/types"
)

func TestToEvent_ClosedVocabulary(t *testing.T) {
	cases := []struct {
		name string
		msg  types.ClientMessage
		want room.Event
		ok   bool
	}{
		{
			name: "zone change",
			msg:  types.ClientMessage{Type: types.MsgZoneChange, Zone: "music"},
			want: room.ZoneChange{Zone: "music"},
			ok:   true,
		},
		{
			name: "play",
			msg:  types.ClientMessage{Type: types.MsgPlaybackPlay, TrackID: "T1", Position: 12.5},
			want: room.PlaybackPlay{TrackID: "T1", Position: 12.5},
			ok:   true,
		},
		{
			name: "enqueue",
			msg:  types.ClientMessage{Type: types.MsgQueueEnqueue, Track: &types.Track{ID: "T2"}},
			want: room.QueueEnqueue{Track: types.Track{ID: "T2"}},
			ok:   true,
		},
		{
			name: "game move",
			msg:  types.ClientMessage{Type: types.MsgGameMove, Slot: 4},
			want: room.GameMove{Slot: 4},
			ok:   true,
		},
		{
			name: "unknown type rejected",
			msg:  types.ClientMessage{Type: "video-action"},
			ok:   false,
		},
		{
			name: "play without track rejected",
			msg:  types.ClientMessage{Type: types.MsgPlaybackPlay},
			ok:   false,
		},
		{
			name: "enqueue without track rejected",
			msg:  types.ClientMessage{Type: types.MsgQueueEnqueue},
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toEvent(tc.msg)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestPump_FlushesOutboxOnClose(t *testing.T) {
	c := room.NewConn("c1", "u1")
	queued := []room.Outbound{
		room.ZoneChanged{Version: 1, ParticipantID: "u1", Zone: "music"},
		room.PlaybackPaused{Version: 2, ParticipantID: "u1", Position: 3},
		room.QueueRemoved{Version: 3, ParticipantID: "u1", Index: 0},
	}
	for _, ev := range queued {
		require.True(t, c.Send(ev))
	}
	c.Close()

	// Everything queued before the close must still be written, in order.
	var got []room.Outbound
	pump(context.Background(), c, func(ev room.Outbound) { got = append(got, ev) })
	assert.Equal(t, queued, got)
}

func TestToServerMessage_PersonalizedGameInit(t *testing.T) {
	msg := toServerMessage(room.GameInit{Version: 3, Symbol: "X", YourTurn: true})
	assert.Equal(t, types.MsgGameInit, msg.Type)
	assert.Equal(t, 3, msg.Version)
	assert.Equal(t, "X", msg.Symbol)
	assert.True(t, msg.YourTurn)

	snap := toServerMessage(room.SnapshotEvent{State: types.Snapshot{SessionID: "s-1", Version: 7}})
	require.NotNil(t, snap.State)
	assert.Equal(t, 7, snap.Version)
	assert.Equal(t, "s-1", snap.State.SessionID)
}
