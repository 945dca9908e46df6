package session

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/chattyhq/chatty-cli/internal/api"
	"github.com/chattyhq/chatty-cli/internal/config"
	"github.com/chattyhq/chatty-cli/internal/storage"
	"github.com/chattyhq/chatty-cli/pkg/types"
)

type fakeAPI struct {
	mu sync.Mutex

	checkUser *types.User
	checkErr  error

	signupPayload *types.AuthPayload
	signupErr     error

	loginPayload *types.AuthPayload
	loginErr     error
	onLogin      func()

	logoutErr error

	updateUser *types.User
	updateErr  error

	checkCalls  int
	signupCalls int
	loginCalls  int
	logoutCalls int
	updateCalls int
}

func (f *fakeAPI) CheckAuth(context.Context) (*types.User, error) {
	f.mu.Lock()
	f.checkCalls++
	f.mu.Unlock()
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return f.checkUser, nil
}

func (f *fakeAPI) Signup(context.Context, types.SignupRequest) (*types.AuthPayload, error) {
	f.mu.Lock()
	f.signupCalls++
	f.mu.Unlock()
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return f.signupPayload, nil
}

func (f *fakeAPI) Login(context.Context, types.LoginRequest) (*types.AuthPayload, error) {
	f.mu.Lock()
	f.loginCalls++
	hook := f.onLogin
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginPayload, nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAPI) UpdateProfile(context.Context, types.UpdateProfileRequest) (*types.User, error) {
	f.mu.Lock()
	f.updateCalls++
	f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updateUser, nil
}

type fakeRealtime struct {
	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
	lastUserID  string
	lastToken   string
	connectErr  error
	roster      func([]string)
}

func (f *fakeRealtime) Connect(userID, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return nil
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	f.lastUserID = userID
	f.lastToken = credential
	f.connected = true
	return nil
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.disconnects++
	}
	f.connected = false
}

func (f *fakeRealtime) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) OnlineUsers() []string { return nil }

func (f *fakeRealtime) OnRoster(fn func(ids []string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster = fn
}

func (f *fakeRealtime) pushRoster(ids []string) {
	f.mu.Lock()
	fn := f.roster
	f.mu.Unlock()
	if fn != nil {
		fn(ids)
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (r *recordingNotifier) Success(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, message)
}

func (r *recordingNotifier) Error(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, message)
}

type fixture struct {
	api      *fakeAPI
	realtime *fakeRealtime
	notifier *recordingNotifier
	creds    *storage.Credentials
	mgr      *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newModeFixture(t, config.AuthModeBearer)
}

func newModeFixture(t *testing.T, mode config.AuthMode) *fixture {
	t.Helper()
	f := &fixture{
		api:      &fakeAPI{},
		realtime: &fakeRealtime{},
		notifier: &recordingNotifier{},
		creds:    storage.NewCredentials(filepath.Join(t.TempDir(), "credentials")),
	}
	f.mgr = NewManager(f.api, f.creds, f.realtime, f.notifier, mode)
	return f
}

// requireInvariants asserts the relationships that must hold after every
// completed operation: user iff authenticated, channel only with a user.
func requireInvariants(t *testing.T, m *Manager) {
	t.Helper()
	st := m.Snapshot()
	require.Equal(t, st.Phase == PhaseAuthenticated, st.User != nil,
		"user must be present iff phase is authenticated (phase=%s)", st.Phase)
	if st.ChannelOpen {
		require.NotNil(t, st.User, "channel must not outlive its session")
	}
}

func testPayload() *types.AuthPayload {
	return &types.AuthPayload{
		User:  types.User{ID: "u1", FullName: "Ada", Email: "ada@example.com"},
		Token: "tok-1",
	}
}

func expiredJWT(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestNewManager_StartsInitializing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, PhaseInitializing, f.mgr.Snapshot().Phase)
	require.False(t, f.mgr.IsAuthenticated())
}

func TestCheckAuth_NoCredentialSkipsNetwork(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mgr.CheckAuth(context.Background())

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseUnauthenticated, st.Phase)
	require.Nil(t, st.User)
	require.Zero(t, f.api.checkCalls, "no network call without a credential")
	require.Zero(t, f.realtime.connects)
	requireInvariants(t, f.mgr)
}

func TestCheckAuth_ExpiredTokenSkipsNetwork(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.creds.Set(expiredJWT(t)))

	f.mgr.CheckAuth(context.Background())

	require.Equal(t, PhaseUnauthenticated, f.mgr.Snapshot().Phase)
	require.Zero(t, f.api.checkCalls)
	require.False(t, f.creds.IsPresent(), "expired credential is dropped")
	requireInvariants(t, f.mgr)
}

func TestCheckAuth_SuccessConnectsChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.creds.Set("tok-1"))
	f.api.checkUser = &types.User{ID: "u1", FullName: "Ada"}

	f.mgr.CheckAuth(context.Background())

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseAuthenticated, st.Phase)
	require.NotNil(t, st.User)
	require.Equal(t, "u1", st.User.ID)
	require.True(t, st.ChannelOpen)
	require.Equal(t, "u1", f.realtime.lastUserID)
	require.Equal(t, "tok-1", f.realtime.lastToken)
	require.True(t, f.mgr.IsAuthenticated())
	requireInvariants(t, f.mgr)
}

func TestCheckAuth_FailureClearsCredential(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.creds.Set("stale"))
	f.api.checkErr = &api.Error{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"}

	f.mgr.CheckAuth(context.Background())

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseUnauthenticated, st.Phase)
	require.Nil(t, st.User)
	require.False(t, f.creds.IsPresent())
	require.Zero(t, f.realtime.connects)
	requireInvariants(t, f.mgr)
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()

	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{Email: "ada@example.com", Password: "pw"}))

	token, ok := f.creds.Get()
	require.True(t, ok)
	require.Equal(t, "tok-1", token)

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseAuthenticated, st.Phase)
	// The stored user is the payload minus the credential.
	require.Equal(t, testPayload().User, *st.User)
	require.False(t, st.LoggingIn)
	require.True(t, st.ChannelOpen)
	require.Equal(t, []string{"Logged in successfully"}, f.notifier.successes)
	requireInvariants(t, f.mgr)
}

func TestLogin_PendingFlagVisibleMidFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()

	var midFlight State
	f.api.onLogin = func() {
		midFlight = f.mgr.Snapshot()
	}

	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	require.True(t, midFlight.LoggingIn, "pending flag must be observable while the call is in flight")
	require.False(t, f.mgr.Snapshot().LoggingIn)
}

func TestLogin_FailureKeepsStateAndSurfacesServerMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginErr = &api.Error{StatusCode: http.StatusBadRequest, Message: "Invalid credentials"}

	err := f.mgr.Login(context.Background(), types.LoginRequest{Email: "a@b.c", Password: "wrong"})
	require.Error(t, err)

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseInitializing, st.Phase, "no partial transition on failure")
	require.Nil(t, st.User)
	require.False(t, st.LoggingIn)
	require.False(t, f.creds.IsPresent())
	require.Zero(t, f.realtime.connects)
	require.Equal(t, []string{"Invalid credentials"}, f.notifier.failures)
	requireInvariants(t, f.mgr)
}

func TestLogin_NetworkFailureUsesGenericMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginErr = errors.New("dial tcp: connection refused")

	require.Error(t, f.mgr.Login(context.Background(), types.LoginRequest{}))
	require.Equal(t, []string{"Login failed"}, f.notifier.failures)
}

func TestSignup_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.signupPayload = testPayload()

	require.NoError(t, f.mgr.Signup(context.Background(), types.SignupRequest{FullName: "Ada", Email: "a@b.c", Password: "pw"}))

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseAuthenticated, st.Phase)
	require.False(t, st.SigningUp)
	require.True(t, st.ChannelOpen)
	require.True(t, f.creds.IsPresent())
	require.Equal(t, []string{"Account created successfully"}, f.notifier.successes)
	requireInvariants(t, f.mgr)
}

func TestSignup_FailureUsesGenericFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.signupErr = errors.New("timeout")

	require.Error(t, f.mgr.Signup(context.Background(), types.SignupRequest{}))
	require.Equal(t, []string{"Signup failed"}, f.notifier.failures)
	require.False(t, f.mgr.Snapshot().SigningUp)
	requireInvariants(t, f.mgr)
}

func TestLogout_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	f.mgr.Logout(context.Background())

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseUnauthenticated, st.Phase)
	require.Nil(t, st.User)
	require.False(t, st.ChannelOpen)
	require.False(t, f.creds.IsPresent())
	require.Contains(t, f.notifier.successes, "Logged out successfully")
	requireInvariants(t, f.mgr)
}

func TestLogout_NetworkFailureStillLogsOutLocally(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	f.api.logoutErr = errors.New("simulated timeout")
	f.mgr.Logout(context.Background())

	st := f.mgr.Snapshot()
	require.Equal(t, PhaseUnauthenticated, st.Phase)
	require.Nil(t, st.User)
	require.False(t, st.ChannelOpen)
	require.False(t, f.creds.IsPresent())
	require.Equal(t, 1, f.realtime.disconnects)

	// The failure is swallowed: no error notification, no success either.
	require.Empty(t, f.notifier.failures)
	require.NotContains(t, f.notifier.successes, "Logged out successfully")
	requireInvariants(t, f.mgr)
}

func TestUpdateProfile_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	f.api.updateUser = &types.User{ID: "u1", FullName: "Ada Lovelace", ProfilePic: "data:image/png;base64,xxx"}
	require.NoError(t, f.mgr.UpdateProfile(context.Background(), types.UpdateProfileRequest{FullName: "Ada Lovelace"}))

	st := f.mgr.Snapshot()
	require.Equal(t, "Ada Lovelace", st.User.FullName)
	require.False(t, st.UpdatingProfile)
	require.Contains(t, f.notifier.successes, "Profile updated successfully")
	requireInvariants(t, f.mgr)
}

func TestUpdateProfile_FailureLeavesUserUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))
	before := f.mgr.Snapshot().User

	f.api.updateErr = errors.New("boom")
	require.Error(t, f.mgr.UpdateProfile(context.Background(), types.UpdateProfileRequest{FullName: "X"}))

	st := f.mgr.Snapshot()
	require.Equal(t, before, st.User)
	require.False(t, st.UpdatingProfile)
	require.Contains(t, f.notifier.failures, "Update failed")
	requireInvariants(t, f.mgr)
}

func TestConnectSocket_SecondCallPerformsNoHandshake(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	f.mgr.ConnectSocket()
	f.mgr.ConnectSocket()

	require.Equal(t, 1, f.realtime.connects)
}

func TestDisconnectSocket_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	f.mgr.DisconnectSocket()
	f.mgr.DisconnectSocket()

	require.Equal(t, 1, f.realtime.disconnects)
	require.False(t, f.mgr.Snapshot().ChannelOpen)
}

func TestRosterRepublishedThroughSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))

	f.realtime.pushRoster([]string{"u2", "u3"})
	require.Equal(t, []string{"u2", "u3"}, f.mgr.Snapshot().OnlineUserIDs)

	// Each push replaces the roster wholesale.
	f.realtime.pushRoster([]string{"u9"})
	require.Equal(t, []string{"u9"}, f.mgr.Snapshot().OnlineUserIDs)

	f.mgr.DisconnectSocket()
	require.Empty(t, f.mgr.Snapshot().OnlineUserIDs)
}

func TestIsAuthenticated_RecomputesFromStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()
	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{}))
	require.True(t, f.mgr.IsAuthenticated())

	// An out-of-band credential wipe (e.g. the transport reacting to a 401)
	// is reflected immediately, even though phase has not moved yet.
	require.NoError(t, f.creds.Clear())
	require.False(t, f.mgr.IsAuthenticated())
	require.Equal(t, PhaseAuthenticated, f.mgr.Snapshot().Phase)
}

func TestCookieMode_LoginWithoutTokenAuthenticates(t *testing.T) {
	t.Parallel()

	f := newModeFixture(t, config.AuthModeCookie)
	// The server sets the credential as a cookie; the payload omits it.
	payload := testPayload()
	payload.Token = ""
	f.api.loginPayload = payload

	require.NoError(t, f.mgr.Login(context.Background(), types.LoginRequest{Email: "ada@example.com", Password: "pw"}))

	require.False(t, f.creds.IsPresent(), "no token to store in cookie mode")
	require.True(t, f.mgr.IsAuthenticated(), "cookie-mode session keys on user presence")
	require.Equal(t, PhaseAuthenticated, f.mgr.Snapshot().Phase)
	requireInvariants(t, f.mgr)
}

func TestCookieMode_CheckAuthConsultsServer(t *testing.T) {
	t.Parallel()

	f := newModeFixture(t, config.AuthModeCookie)
	f.api.checkUser = &types.User{ID: "u1", FullName: "Ada"}

	// The store is empty; only the jar-backed transport can answer.
	f.mgr.CheckAuth(context.Background())

	require.Equal(t, 1, f.api.checkCalls)
	st := f.mgr.Snapshot()
	require.Equal(t, PhaseAuthenticated, st.Phase)
	require.True(t, f.mgr.IsAuthenticated())
	requireInvariants(t, f.mgr)
}

func TestCookieMode_CheckAuthFailureUnauthenticates(t *testing.T) {
	t.Parallel()

	f := newModeFixture(t, config.AuthModeCookie)
	f.api.checkErr = &api.Error{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"}

	f.mgr.CheckAuth(context.Background())

	require.Equal(t, 1, f.api.checkCalls)
	require.Equal(t, PhaseUnauthenticated, f.mgr.Snapshot().Phase)
	require.False(t, f.mgr.IsAuthenticated())
	requireInvariants(t, f.mgr)
}

func TestOperationsSerialize(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.loginPayload = testPayload()

	release := make(chan struct{})
	f.api.onLogin = func() { <-release }

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.mgr.Login(context.Background(), types.LoginRequest{})
	}()

	// Logout issued while login is in flight queues behind it instead of
	// racing, so the final state is the logout outcome.
	go func() {
		release <- struct{}{}
	}()
	f.mgr.Logout(context.Background())
	<-done

	requireInvariants(t, f.mgr)
}
