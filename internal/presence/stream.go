// Package presence maintains the realtime view of who is online, in
// which channel, and who is speaking. It owns one socket.io connection
// per authenticated session and folds the server's event stream into
// roster, channel and speaking views.
package presence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	sio "github.com/zishang520/socket.io/v3/pkg/types"
)

// streamPath is the socket.io mount point on the server.
const streamPath = "/api/ws"

// ErrNoToken is returned by Connect when the session holds no access
// token.
var ErrNoToken = errors.New("no access token")

// Status is the connection state.
type Status int

const (
	// StatusDisconnected means no usable connection exists.
	StatusDisconnected Status = iota
	// StatusConnecting means a connection attempt is in flight.
	StatusConnecting
	// StatusConnected means the transport acknowledged the connection.
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TokenSource provides the current access token for the realtime
// handshake. The stream only reads tokens, never writes them.
type TokenSource interface {
	AccessToken() string
}

// Stream owns the realtime connection and the derived presence views.
//
// Reads are snapshots; the raw event stream is not exposed. The stream
// performs no reconnection of its own beyond what the socket.io engine
// does internally.
type Stream struct {
	serverURL string
	clientID  string
	tokens    TokenSource

	mu         sync.RWMutex
	sock       *socket.Socket
	status     Status
	boundToken string
	// gen invalidates callbacks from a superseded or closed connection:
	// no event from an old generation may touch the view.
	gen  uint64
	view viewState

	onChange func()
}

// NewStream creates a Stream for the given server. clientID is the
// stable installation id sent in the handshake.
func NewStream(serverURL, clientID string, tokens TokenSource) *Stream {
	return &Stream{
		serverURL: serverURL,
		clientID:  clientID,
		tokens:    tokens,
		view:      newViewState(),
	}
}

// OnChange registers a callback invoked after every folded event and
// connection transition. Used by UIs to re-render; must not block.
func (s *Stream) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Connect opens the realtime connection bound to the session's current
// access token. If a connection bound to the same token is already open
// this is a no-op; a connection bound to a superseded token is torn down
// and replaced.
func (s *Stream) Connect() error {
	token := s.tokens.AccessToken()
	if token == "" {
		return ErrNoToken
	}

	s.mu.Lock()
	if s.sock != nil && s.boundToken == token {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.status = StatusConnecting
	s.boundToken = token
	s.mu.Unlock()

	opts := socket.DefaultOptions()
	opts.SetPath(streamPath)
	opts.SetTransports(sio.NewSet(socket.WebSocket))
	opts.SetAuth(map[string]interface{}{
		"token":    token,
		"clientId": s.clientID,
	})

	sock, err := socket.Connect(s.serverURL, opts)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.status = StatusDisconnected
			s.boundToken = ""
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// Closed or superseded while connecting.
		s.mu.Unlock()
		sock.Disconnect()
		return nil
	}
	s.sock = sock
	s.mu.Unlock()

	sock.On(sio.EventName("connect"), func(...any) {
		s.handleConnect(gen)
	})
	sock.On(sio.EventName("disconnect"), func(args ...any) {
		s.handleDisconnect(gen, firstString(args))
	})
	sock.On(sio.EventName("connect_error"), func(args ...any) {
		s.handleConnectError(gen, args)
	})

	for _, name := range []string{eventUserJoined, eventUserLeft, eventUserSpeaking, eventChannelState} {
		event := name
		sock.On(sio.EventName(event), func(args ...any) {
			// Applied synchronously: events must fold in transport
			// delivery order.
			s.handleEvent(gen, event, args)
		})
	}

	return nil
}

// Rebind reconnects when the session's token has superseded the one the
// connection was opened with. No-op otherwise.
func (s *Stream) Rebind() error {
	token := s.tokens.AccessToken()
	if token == "" {
		s.Close()
		return ErrNoToken
	}

	s.mu.RLock()
	bound := s.boundToken
	s.mu.RUnlock()

	if token == bound {
		return nil
	}
	return s.Connect()
}

// Close tears down the connection and clears all roster state. Events
// already in flight are discarded; nothing can resurrect the view.
func (s *Stream) Close() {
	s.mu.Lock()
	s.gen++
	s.teardownLocked()
	s.mu.Unlock()
	s.notifyChange()
}

// teardownLocked disconnects and clears connection-scoped state. The
// caller must hold s.mu.
func (s *Stream) teardownLocked() {
	if s.sock != nil {
		s.sock.Disconnect()
		s.sock = nil
	}
	s.status = StatusDisconnected
	s.boundToken = ""
	s.view = newViewState()
}

func (s *Stream) handleConnect(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnected
	// The server's presence snapshot may have changed while we were
	// away; the view is rebuilt from this connection's events only.
	s.view = newViewState()
	s.mu.Unlock()

	log.Info().Msg("presence stream connected")
	s.notifyChange()
}

func (s *Stream) handleDisconnect(gen uint64, reason string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.status = StatusDisconnected
	s.mu.Unlock()

	log.Info().Str("reason", reason).Msg("presence stream disconnected")
	s.notifyChange()
}

func (s *Stream) handleConnectError(gen uint64, args []any) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.status = StatusDisconnected
	s.mu.Unlock()

	if len(args) > 0 {
		log.Warn().Interface("error", args[0]).Msg("presence stream connect error")
	}
	s.notifyChange()
}

func (s *Stream) handleEvent(gen uint64, name string, args []any) {
	var data map[string]any
	if len(args) > 0 {
		data, _ = args[0].(map[string]any)
	}

	ev, err := decodeEvent(name, data, time.Now())
	if err != nil {
		log.Debug().Err(err).Str("event", name).Msg("dropping malformed event")
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.view = fold(s.view, ev)
	s.mu.Unlock()

	s.notifyChange()
}

func (s *Stream) notifyChange() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// IsConnected reports whether the transport currently acknowledges the
// connection.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusConnected
}

// Status returns the connection status.
func (s *Stream) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Roster returns a snapshot of the presence roster in a deterministic
// order: ascending by JoinedAt, then by UserID, then by ChannelID.
func (s *Stream) Roster() []RosterEntry {
	s.mu.RLock()
	entries := make([]RosterEntry, 0, len(s.view.roster))
	for _, entry := range s.view.roster {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		if entries[i].UserID != entries[j].UserID {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].ChannelID < entries[j].ChannelID
	})
	return entries
}

// Channels returns a snapshot of the last-known channel states keyed by
// channel id. Snapshots are not mutated after insertion, so sharing the
// inner maps is safe.
func (s *Stream) Channels() map[int64]ChannelSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]ChannelSnapshot, len(s.view.channels))
	for id, snap := range s.view.channels {
		out[id] = snap
	}
	return out
}

// Speaking returns a snapshot of the per-user speaking flags.
func (s *Stream) Speaking() map[int64]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]bool, len(s.view.speaking))
	for id, speaking := range s.view.speaking {
		out[id] = speaking
	}
	return out
}

func firstString(args []any) string {
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return ""
}
