package session

import (
	"github.com/chattyhq/chatty-cli/pkg/types"
)

// Phase is the authentication lifecycle state.
//
// The machine cycles for the life of the process:
//
//	initializing → checking-auth → {authenticated, unauthenticated}
//	authenticated → unauthenticated (logout)
//	unauthenticated → authenticated (login/signup success)
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseCheckingAuth    Phase = "checking-auth"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// State is a point-in-time snapshot of the session manager for observers.
//
// The pending flags each track one in-flight mutating operation for busy
// indicators; they are orthogonal to Phase.
type State struct {
	Phase Phase
	// User is present if and only if Phase is PhaseAuthenticated.
	User *types.User

	SigningUp       bool
	LoggingIn       bool
	UpdatingProfile bool

	// OnlineUserIDs is the latest roster pushed over the realtime channel.
	OnlineUserIDs []string
	// ChannelOpen reports whether the realtime channel is live. The channel
	// never outlives the session that opened it.
	ChannelOpen bool
}
