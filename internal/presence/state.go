package presence

import "time"

// rosterKey identifies one user's membership in one channel. A user
// present in two channels has two independent entries.
type rosterKey struct {
	userID    int64
	channelID int64
}

// RosterEntry is one user's presence in one channel.
type RosterEntry struct {
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	ChannelID  int64     `json:"channel_id"`
	IsSpeaking bool      `json:"is_speaking"`
	JoinedAt   time.Time `json:"joined_at"`
}

// ChannelSnapshot is the last-known server state for one channel. Fields
// other than "id" are server-defined and treated opaquely; each
// channel_state event replaces the snapshot wholesale.
type ChannelSnapshot map[string]any

// viewState holds the three derived views folded from the event stream.
// The maps are connection-scoped caches: they are rebuilt from scratch
// on every fresh connection.
type viewState struct {
	roster   map[rosterKey]RosterEntry
	channels map[int64]ChannelSnapshot
	speaking map[int64]bool
}

func newViewState() viewState {
	return viewState{
		roster:   make(map[rosterKey]RosterEntry),
		channels: make(map[int64]ChannelSnapshot),
		speaking: make(map[int64]bool),
	}
}
