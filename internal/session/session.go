// Package session owns the client's authentication state machine and the
// request pipeline that keeps every outbound call carrying a valid
// bearer token, refreshing and replaying transparently on expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/darkjan1234/rpoiptt12/internal/api"
	"github.com/darkjan1234/rpoiptt12/internal/storage"
	"github.com/darkjan1234/rpoiptt12/pkg/types"
)

const (
	// requestTimeout is the per-request timeout on the authenticated
	// pipeline client.
	requestTimeout = 15 * time.Second
	// refreshTimeout bounds the refresh call; a timeout counts as refresh
	// failure.
	refreshTimeout = 10 * time.Second
)

// State is the authentication state of a Manager.
type State int

const (
	// StateInitializing is the state before Restore has run.
	StateInitializing State = iota
	// StateUnauthenticated means no valid session exists.
	StateUnauthenticated
	// StateAuthenticated means an access token and user record are held.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager holds the authentication state machine for one client session.
//
// Construct it explicitly and pass the handle to whatever needs the
// authenticated pipeline; there is no process-wide instance.
type Manager struct {
	store *storage.Store

	// bare performs login, refresh and the logout notification. It has no
	// auth transport, so a 401 on these calls can never recurse into the
	// refresh protocol.
	bare *api.Client
	// authed is the pipeline client: bearer injection plus
	// refresh-on-401 with replay.
	authed     *api.Client
	httpClient *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	user         *types.User
	state        State
	listeners    []func(State)

	refreshGroup singleflight.Group
}

// New creates a Manager in StateInitializing. Call Restore once at
// process start to settle the initial state.
func New(serverURL string, store *storage.Store) *Manager {
	m := &Manager{
		store: store,
		state: StateInitializing,
	}
	m.bare = api.New(serverURL, &http.Client{Timeout: refreshTimeout})
	m.httpClient = &http.Client{
		Timeout:   requestTimeout,
		Transport: &authTransport{session: m},
	}
	m.authed = api.New(serverURL, m.httpClient)
	return m
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns a copy of the authenticated user record, or nil.
func (m *Manager) CurrentUser() *types.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// AccessToken returns the current access token, or empty.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// HTTPClient returns the authenticated pipeline client. Every
// collaborator request must go through it.
func (m *Manager) HTTPClient() *http.Client {
	return m.httpClient
}

// API returns an api.Client bound to the authenticated pipeline.
func (m *Manager) API() *api.Client {
	return m.authed
}

// OnStateChange registers fn to be called after every state transition.
// Listeners run outside the manager lock and must not block.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Login authenticates with the server. On success the token pair is
// persisted and the manager becomes StateAuthenticated. On failure no
// prior session state is touched.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	resp, err := m.bare.Login(ctx, username, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest {
				return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
			}
			return fmt.Errorf("%w: %s", ErrNetwork, apiErr.Message)
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if err := m.store.SaveCredentials(storage.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to persist credentials")
	}

	m.mu.Lock()
	m.accessToken = resp.AccessToken
	m.refreshToken = resp.RefreshToken
	user := resp.User
	m.user = &user
	notify := m.transitionLocked(StateAuthenticated)
	m.mu.Unlock()
	notify()

	log.Info().Str("username", resp.User.Username).Msg("logged in")
	return nil
}

// Logout tears the session down. The server notification is best-effort;
// logout always succeeds locally.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()

	if token != "" {
		if err := m.bare.Logout(ctx, token); err != nil {
			log.Debug().Err(err).Msg("logout notification failed")
		}
	}

	m.reset()
	log.Info().Msg("logged out")
}

// Restore settles the initial authentication state from persisted
// credentials. It probes GET /api/auth/me through the authenticated
// pipeline, so an expired-but-refreshable access token restores
// silently. On any failure the session is cleared.
//
// Restore transitions the manager out of StateInitializing exactly once.
func (m *Manager) Restore(ctx context.Context) {
	creds, ok, err := m.store.LoadCredentials()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load credentials")
	}
	if !ok {
		m.reset()
		return
	}

	m.mu.Lock()
	m.accessToken = creds.AccessToken
	m.refreshToken = creds.RefreshToken
	m.mu.Unlock()

	user, err := m.authed.Me(ctx)
	if err != nil {
		log.Info().Err(err).Msg("session restore failed")
		m.reset()
		return
	}

	m.mu.Lock()
	m.user = user
	notify := m.transitionLocked(StateAuthenticated)
	m.mu.Unlock()
	notify()

	log.Info().Str("username", user.Username).Msg("session restored")
}

// refreshAccessToken runs the refresh protocol. Concurrent callers share
// one in-flight refresh; the slot clears only after that refresh
// settles. On failure the session is torn down.
func (m *Manager) refreshAccessToken(stale string) (string, error) {
	// A parallel caller may have refreshed already.
	if current := m.AccessToken(); current != "" && current != stale {
		return current, nil
	}

	v, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		m.mu.Lock()
		current, refresh := m.accessToken, m.refreshToken
		m.mu.Unlock()

		if current != "" && current != stale {
			return current, nil
		}
		if refresh == "" {
			return nil, ErrSessionExpired
		}

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		token, err := m.bare.Refresh(ctx, refresh)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		m.adoptAccessToken(token)
		return token, nil
	})
	if err != nil {
		m.reset()
		return "", err
	}
	return v.(string), nil
}

// adoptAccessToken installs and persists a refreshed access token. The
// refresh token is unchanged.
func (m *Manager) adoptAccessToken(token string) {
	m.mu.Lock()
	m.accessToken = token
	creds := storage.Credentials{AccessToken: token, RefreshToken: m.refreshToken}
	m.mu.Unlock()

	if err := m.store.SaveCredentials(creds); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed token")
	}
	log.Debug().Msg("access token refreshed")
}

// reset clears all session state, in memory and on disk, and settles on
// StateUnauthenticated. Used by logout, restore failure and refresh
// failure alike so a forced logout is indistinguishable from an explicit
// one.
func (m *Manager) reset() {
	if err := m.store.ClearCredentials(); err != nil {
		log.Warn().Err(err).Msg("failed to clear credentials")
	}

	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.user = nil
	notify := m.transitionLocked(StateUnauthenticated)
	m.mu.Unlock()
	notify()
}

// transitionLocked records the state change and returns the listener
// notification to run after the lock is released. The caller must hold
// m.mu.
func (m *Manager) transitionLocked(next State) func() {
	if m.state == next {
		return func() {}
	}
	m.state = next
	listeners := make([]func(State), len(m.listeners))
	copy(listeners, m.listeners)
	return func() {
		for _, fn := range listeners {
			fn(next)
		}
	}
}
