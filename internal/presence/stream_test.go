package presence

import (
	"testing"
	"time"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

// testStream returns a Stream wired as if a connection attempt for the
// given generation is underway, without dialing anything.
func testStream(gen uint64) *Stream {
	s := NewStream("http://example", "client-1", staticTokens("A1"))
	s.gen = gen
	s.status = StatusConnecting
	s.boundToken = "A1"
	return s
}

func joinedPayload(userID, channelID float64, username string) []any {
	return []any{map[string]any{
		"user":       map[string]any{"id": userID, "username": username},
		"channel_id": channelID,
	}}
}

func TestStream_ConnectAckFoldsEvents(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)

	if !s.IsConnected() {
		t.Fatalf("status=%v, want connected", s.Status())
	}

	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))
	s.handleEvent(1, eventUserSpeaking, []any{map[string]any{"user_id": float64(1), "is_speaking": true}})

	roster := s.Roster()
	if len(roster) != 1 {
		t.Fatalf("roster size=%d, want 1", len(roster))
	}
	if roster[0].Username != "bob" || !roster[0].IsSpeaking {
		t.Fatalf("entry=%+v", roster[0])
	}
	if !s.Speaking()[1] {
		t.Fatalf("speaking index not set")
	}
}

func TestStream_ReconnectClearsState(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)
	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))
	s.handleEvent(1, eventChannelState, []any{map[string]any{
		"channel": map[string]any{"id": float64(5), "name": "dispatch"},
	}})

	s.handleDisconnect(1, "transport close")
	if s.IsConnected() {
		t.Fatalf("still connected after disconnect")
	}
	// A drop degrades the connection flag only: the last-folded view
	// stays readable until reconnection.
	if len(s.Roster()) != 1 || len(s.Channels()) != 1 {
		t.Fatalf("roster corrupted by disconnect")
	}

	// Reconnect with no events yet received: no stale entries survive.
	s.handleConnect(1)
	if len(s.Roster()) != 0 || len(s.Channels()) != 0 || len(s.Speaking()) != 0 {
		t.Fatalf("stale state survived reconnect: roster=%d channels=%d",
			len(s.Roster()), len(s.Channels()))
	}
}

func TestStream_EventsWhileDisconnectedAreDropped(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)
	s.handleDisconnect(1, "transport close")

	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))
	if len(s.Roster()) != 0 {
		t.Fatalf("event folded while disconnected")
	}
}

func TestStream_StaleGenerationIsIgnored(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)
	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))

	s.Close()

	// Callbacks from the closed connection arrive late.
	s.handleEvent(1, eventUserJoined, joinedPayload(2, 5, "eve"))
	s.handleConnect(1)
	s.handleDisconnect(1, "late")

	if len(s.Roster()) != 0 {
		t.Fatalf("late event resurrected roster state")
	}
	if s.IsConnected() {
		t.Fatalf("late connect ack resurrected the connection")
	}
}

func TestStream_CloseClearsEverything(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)
	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))

	s.Close()

	if s.Status() != StatusDisconnected {
		t.Fatalf("status=%v after close", s.Status())
	}
	if len(s.Roster()) != 0 || len(s.Speaking()) != 0 || len(s.Channels()) != 0 {
		t.Fatalf("state survived close")
	}
}

func TestStream_RosterOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.mu.Lock()
	s.view = foldAll(s.view,
		UserJoined{UserID: 3, Username: "carol", ChannelID: 5, At: base.Add(2 * time.Second)},
		UserJoined{UserID: 1, Username: "bob", ChannelID: 9, At: base.Add(time.Second)},
		UserJoined{UserID: 1, Username: "bob", ChannelID: 5, At: base.Add(time.Second)},
		UserJoined{UserID: 2, Username: "eve", ChannelID: 5, At: base},
	)
	s.mu.Unlock()

	roster := s.Roster()
	if len(roster) != 4 {
		t.Fatalf("roster size=%d, want 4", len(roster))
	}

	// Ascending by JoinedAt, then UserID, then ChannelID.
	wantUsers := []int64{2, 1, 1, 3}
	wantChannels := []int64{5, 5, 9, 5}
	for i := range roster {
		if roster[i].UserID != wantUsers[i] || roster[i].ChannelID != wantChannels[i] {
			t.Fatalf("roster[%d]=(%d,%d), want (%d,%d)",
				i, roster[i].UserID, roster[i].ChannelID, wantUsers[i], wantChannels[i])
		}
	}
}

func TestStream_OnChangeFires(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	var calls int
	s.OnChange(func() { calls++ })

	s.handleConnect(1)
	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))
	s.handleDisconnect(1, "bye")

	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
}

func TestStream_RebindNoopOnSameToken(t *testing.T) {
	t.Parallel()

	s := testStream(1)
	s.handleConnect(1)
	s.handleEvent(1, eventUserJoined, joinedPayload(1, 5, "bob"))

	// The bound token still matches the session token: nothing happens.
	if err := s.Rebind(); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if len(s.Roster()) != 1 || !s.IsConnected() {
		t.Fatalf("rebind disturbed a healthy connection")
	}
}

func TestStream_RebindWithoutTokenTearsDown(t *testing.T) {
	t.Parallel()

	s := NewStream("http://example", "client-1", staticTokens(""))
	s.gen = 1
	s.status = StatusConnected
	s.boundToken = "A1"
	s.view = fold(s.view, UserJoined{UserID: 1, Username: "bob", ChannelID: 5, At: time.Now()})

	if err := s.Rebind(); err != ErrNoToken {
		t.Fatalf("err=%v, want ErrNoToken", err)
	}
	if s.IsConnected() || len(s.Roster()) != 0 {
		t.Fatalf("teardown incomplete")
	}
}
