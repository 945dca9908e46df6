// Package session owns the client-side authentication state machine. The
// manager orchestrates the transport, the credential store, and the realtime
// channel; it is the single mutation entry point for session state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/chattyhq/chatty-cli/internal/api"
	"github.com/chattyhq/chatty-cli/internal/config"
	"github.com/chattyhq/chatty-cli/internal/notify"
	"github.com/chattyhq/chatty-cli/internal/storage"
	"github.com/chattyhq/chatty-cli/pkg/logger"
	"github.com/chattyhq/chatty-cli/pkg/types"
)

// API is the authenticated transport surface the manager orchestrates.
type API interface {
	CheckAuth(ctx context.Context) (*types.User, error)
	Signup(ctx context.Context, req types.SignupRequest) (*types.AuthPayload, error)
	Login(ctx context.Context, req types.LoginRequest) (*types.AuthPayload, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, req types.UpdateProfileRequest) (*types.User, error)
}

// CredentialStore is the durable slot holding the bearer credential.
type CredentialStore interface {
	Set(token string) error
	Get() (string, bool)
	Clear() error
	IsPresent() bool
}

// Realtime is the channel manager surface. Connect must be idempotent while
// open and Disconnect while closed.
type Realtime interface {
	Connect(userID, credential string) error
	Disconnect()
	IsConnected() bool
	OnlineUsers() []string
	OnRoster(fn func(ids []string))
}

// Manager is the session state machine. It is created once at process start
// and lives until process exit.
//
// Consumers receive a *Manager handle instead of reaching for ambient
// globals; all mutation goes through its methods.
type Manager struct {
	api      API
	creds    CredentialStore
	realtime Realtime
	notifier notify.Notifier

	// ambient is true in cookie mode: the credential lives in the transport's
	// cookie jar, not in the store, so the store cannot witness the session.
	ambient bool

	// opMu serializes mutating operations so only one authentication
	// transition is in flight at a time. Overlapping calls queue.
	opMu sync.Mutex

	// mu guards the observable state below. It is never held across network
	// calls, so snapshots (and pending flags) stay readable mid-operation.
	mu              sync.RWMutex
	phase           Phase
	user            *types.User
	signingUp       bool
	loggingIn       bool
	updatingProfile bool
	online          []string
}

// NewManager creates the session manager in the initializing phase and
// subscribes it to roster updates from the realtime channel.
func NewManager(apiClient API, creds CredentialStore, realtime Realtime, notifier notify.Notifier, mode config.AuthMode) *Manager {
	m := &Manager{
		api:      apiClient,
		creds:    creds,
		realtime: realtime,
		notifier: notifier,
		ambient:  mode == config.AuthModeCookie,
		phase:    PhaseInitializing,
	}
	realtime.OnRoster(m.setOnlineUsers)
	return m
}

// CheckAuth resolves the startup phase. In bearer mode, without a stored
// credential (or with one that is already past its exp claim) it settles on
// unauthenticated without any network call; otherwise it validates the
// session against the server and connects the realtime channel on success.
// In cookie mode the store cannot witness the session, so the server is
// always consulted.
//
// The checking phase is guaranteed to be exited on every path.
func (m *Manager) CheckAuth(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.ambient {
		token, ok := m.creds.Get()
		if !ok {
			m.setUnauthenticated()
			return
		}
		if storage.IsExpired(token, time.Now()) {
			// Certain to fail the server check; drop it without a round trip.
			m.clearCredential()
			m.setUnauthenticated()
			return
		}
	}

	m.setPhase(PhaseCheckingAuth)
	defer m.settleCheck()

	user, err := m.api.CheckAuth(ctx)
	if err != nil {
		logger.Debugf("auth check failed: %v", err)
		m.clearCredential()
		m.setUnauthenticated()
		return
	}

	m.setAuthenticated(user)
	m.connectSocket()
}

// Signup creates an account and, on success, establishes the session.
// State is unchanged on failure.
func (m *Manager) Signup(ctx context.Context, req types.SignupRequest) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setSigningUp(true)
	defer m.setSigningUp(false)

	payload, err := m.api.Signup(ctx, req)
	if err != nil {
		m.notifier.Error(userMessage(err, "Signup failed"))
		return err
	}

	m.establishSession(payload)
	m.notifier.Success("Account created successfully")
	return nil
}

// Login authenticates and, on success, establishes the session. State is
// unchanged on failure.
func (m *Manager) Login(ctx context.Context, req types.LoginRequest) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoggingIn(true)
	defer m.setLoggingIn(false)

	payload, err := m.api.Login(ctx, req)
	if err != nil {
		m.notifier.Error(userMessage(err, "Login failed"))
		return err
	}

	m.establishSession(payload)
	m.notifier.Success("Logged in successfully")
	return nil
}

// Logout ends the session. Local cleanup is unconditional: even when the
// network call fails the client ends up logged out, credential cleared and
// channel closed. The network error is logged, never surfaced as a failure.
func (m *Manager) Logout(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.api.Logout(ctx)

	m.clearCredential()
	m.setUnauthenticated()
	m.disconnectSocket()

	if err != nil {
		logger.Warnf("logout request failed (local state cleared anyway): %v", err)
		return
	}
	m.notifier.Success("Logged out successfully")
}

// UpdateProfile updates profile fields. On success the user record is
// replaced wholesale with the server response; on failure it is untouched.
func (m *Manager) UpdateProfile(ctx context.Context, req types.UpdateProfileRequest) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setUpdatingProfile(true)
	defer m.setUpdatingProfile(false)

	user, err := m.api.UpdateProfile(ctx, req)
	if err != nil {
		m.notifier.Error(userMessage(err, "Update failed"))
		return err
	}

	m.setUser(user)
	m.notifier.Success("Profile updated successfully")
	return nil
}

// ConnectSocket opens the realtime channel for the current user. A no-op
// when no user is present or the channel is already open.
func (m *Manager) ConnectSocket() {
	m.connectSocket()
}

// DisconnectSocket closes the realtime channel. Idempotent.
func (m *Manager) DisconnectSocket() {
	m.disconnectSocket()
}

// IsAuthenticated reports whether a credential is stored AND a user is
// present. Unlike Phase, which can lag mid-transition, this is recomputed
// fresh on every call. In cookie mode the store is not consulted (the jar
// holds the credential) and user presence alone decides.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	user := m.user
	m.mu.RUnlock()
	if m.ambient {
		return user != nil
	}
	return m.creds.IsPresent() && user != nil
}

// Snapshot returns a consistent copy of the observable session state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{
		Phase:           m.phase,
		SigningUp:       m.signingUp,
		LoggingIn:       m.loggingIn,
		UpdatingProfile: m.updatingProfile,
		OnlineUserIDs:   append([]string(nil), m.online...),
		ChannelOpen:     m.realtime.IsConnected(),
	}
	if m.user != nil {
		user := *m.user
		st.User = &user
	}
	return st
}

// establishSession persists the credential, installs the user record (the
// payload minus the token), and connects the realtime channel.
func (m *Manager) establishSession(payload *types.AuthPayload) {
	if payload.Token != "" {
		if err := m.creds.Set(payload.Token); err != nil {
			logger.Warnf("failed to persist credential: %v", err)
		}
	}
	user := payload.User
	m.setAuthenticated(&user)
	m.connectSocket()
}

func (m *Manager) connectSocket() {
	m.mu.RLock()
	user := m.user
	m.mu.RUnlock()

	if user == nil || m.realtime.IsConnected() {
		return
	}
	token, _ := m.creds.Get()
	if err := m.realtime.Connect(user.ID, token); err != nil {
		// The session stays valid without a live channel; reconnection is a
		// caller-driven retry.
		logger.Errorf("realtime connect failed: %v", err)
	}
}

func (m *Manager) disconnectSocket() {
	m.realtime.Disconnect()
	m.setOnlineUsers(nil)
}

// settleCheck forces the machine out of checking-auth if an exit path was
// missed, so the checking state never outlives its operation.
func (m *Manager) settleCheck() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseCheckingAuth {
		m.phase = PhaseUnauthenticated
		m.user = nil
	}
}

func (m *Manager) setPhase(phase Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = phase
}

func (m *Manager) setAuthenticated(user *types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
	m.phase = PhaseAuthenticated
}

func (m *Manager) setUnauthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.phase = PhaseUnauthenticated
}

func (m *Manager) setUser(user *types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
}

func (m *Manager) setSigningUp(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signingUp = v
}

func (m *Manager) setLoggingIn(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggingIn = v
}

func (m *Manager) setUpdatingProfile(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatingProfile = v
}

func (m *Manager) setOnlineUsers(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = ids
}

func (m *Manager) clearCredential() {
	if err := m.creds.Clear(); err != nil {
		logger.Warnf("failed to clear credential: %v", err)
	}
}

// userMessage picks the server-supplied validation text when the error
// carries one, falling back to generic text otherwise.
func userMessage(err error, fallback string) string {
	if msg := api.ErrorMessage(err); msg != "" {
		return msg
	}
	return fallback
}
