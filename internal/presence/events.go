package presence

import (
	"fmt"
	"time"
)

// Server-pushed event names consumed by the stream.
const (
	eventUserJoined   = "user_joined"
	eventUserLeft     = "user_left"
	eventUserSpeaking = "user_speaking"
	eventChannelState = "channel_state"
)

// Event is one decoded server-pushed presence event.
type Event interface {
	eventName() string
}

// UserJoined reports a user entering a channel.
type UserJoined struct {
	UserID    int64
	Username  string
	ChannelID int64
	// At is the local receive time, recorded as the entry's JoinedAt.
	At time.Time
}

func (UserJoined) eventName() string { return eventUserJoined }

// UserLeft reports a user leaving a channel.
type UserLeft struct {
	UserID    int64
	ChannelID int64
}

func (UserLeft) eventName() string { return eventUserLeft }

// UserSpeaking reports a change to a user's speaking flag. The flag is
// channel-independent in the wire payload.
type UserSpeaking struct {
	UserID     int64
	IsSpeaking bool
}

func (UserSpeaking) eventName() string { return eventUserSpeaking }

// ChannelState carries a full channel snapshot.
type ChannelState struct {
	Channel ChannelSnapshot
}

func (ChannelState) eventName() string { return eventChannelState }

// decodeEvent converts a raw socket.io payload into an Event.
func decodeEvent(name string, data map[string]any, now time.Time) (Event, error) {
	switch name {
	case eventUserJoined, eventUserLeft:
		user, ok := data["user"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: missing user", name)
		}
		userID := asInt64(user["id"])
		channelID := asInt64(data["channel_id"])
		if userID == 0 || channelID == 0 {
			return nil, fmt.Errorf("%s: missing user id or channel id", name)
		}
		if name == eventUserLeft {
			return UserLeft{UserID: userID, ChannelID: channelID}, nil
		}
		return UserJoined{
			UserID:    userID,
			Username:  asString(user["username"]),
			ChannelID: channelID,
			At:        now,
		}, nil

	case eventUserSpeaking:
		userID := asInt64(data["user_id"])
		if userID == 0 {
			return nil, fmt.Errorf("%s: missing user id", name)
		}
		return UserSpeaking{UserID: userID, IsSpeaking: asBool(data["is_speaking"])}, nil

	case eventChannelState:
		channel, ok := data["channel"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: missing channel", name)
		}
		if asInt64(channel["id"]) == 0 {
			return nil, fmt.Errorf("%s: missing channel id", name)
		}
		return ChannelState{Channel: ChannelSnapshot(channel)}, nil

	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
}

// asInt64 coerces the numeric shapes a socket.io payload may carry.
func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func asBool(value any) bool {
	b, _ := value.(bool)
	return b
}
