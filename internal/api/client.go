// Package api implements the authenticated HTTP transport for the Chatty
// backend. Every outbound request carries the stored credential (in bearer
// mode) and every response is inspected for authorization failure.
package api

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/chattyhq/chatty-cli/internal/config"
	"github.com/chattyhq/chatty-cli/pkg/logger"
	"github.com/chattyhq/chatty-cli/pkg/types"
)

const (
	// defaultTimeout is the per-request timeout used by the client.
	defaultTimeout = 15 * time.Second
	// authPrefix is the path prefix of the auth endpoints.
	authPrefix = "/api/auth"
)

// CredentialSource is the read/clear surface the transport needs from the
// credential store. Set stays with the session manager; the transport never
// writes a credential, it only attaches or drops one.
type CredentialSource interface {
	Get() (string, bool)
	Clear() error
}

// Client is the authenticated transport. It is stateless per call and safe
// to share across any number of concurrent in-flight requests.
type Client struct {
	rc    *resty.Client
	creds CredentialSource
	mode  config.AuthMode
}

// serverError is the error body shape used by the Chatty backend.
type serverError struct {
	Message string `json:"message"`
}

// New creates a transport for the configured server and credential mode.
func New(cfg *config.Config, creds CredentialSource) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c := &Client{rc: rc, creds: creds, mode: cfg.AuthMode}

	switch cfg.AuthMode {
	case config.AuthModeCookie:
		// The server owns the credential; requests go out without a header
		// and the jar forwards whatever cookie the server set.
		jar, err := cookiejar.New(nil)
		if err == nil {
			rc.SetCookieJar(jar)
		}
	default:
		rc.AddRequestMiddleware(c.attachCredential)
	}
	rc.AddResponseMiddleware(c.inspectUnauthorized)

	return c
}

// attachCredential adds the bearer header when a credential is stored.
// Anonymous endpoints (login, signup) stay reachable when it is absent.
func (c *Client) attachCredential(_ *resty.Client, req *resty.Request) error {
	if token, ok := c.creds.Get(); ok {
		req.SetAuthToken(token)
	}
	return nil
}

// inspectUnauthorized drops the stored credential after a 401. This is local
// stale-credential hygiene only; the triggering call still fails and the
// caller decides what to do next.
func (c *Client) inspectUnauthorized(_ *resty.Client, res *resty.Response) error {
	if res.StatusCode() == http.StatusUnauthorized {
		if err := c.creds.Clear(); err != nil {
			logger.Warnf("failed to clear credential after 401: %v", err)
		}
	}
	return nil
}

// Close releases transport resources.
func (c *Client) Close() error {
	return c.rc.Close()
}

// CheckAuth validates the current session and returns the user it belongs to.
func (c *Client) CheckAuth(ctx context.Context) (*types.User, error) {
	var user types.User
	var srvErr serverError
	res, err := c.rc.R().
		SetContext(ctx).
		SetResult(&user).
		SetError(&srvErr).
		Get(authPrefix + "/check")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, &Error{StatusCode: res.StatusCode(), Message: srvErr.Message}
	}
	return &user, nil
}

// Signup creates an account and returns the user plus the session credential.
func (c *Client) Signup(ctx context.Context, req types.SignupRequest) (*types.AuthPayload, error) {
	return c.postAuth(ctx, authPrefix+"/signup", req)
}

// Login authenticates and returns the user plus the session credential.
func (c *Client) Login(ctx context.Context, req types.LoginRequest) (*types.AuthPayload, error) {
	return c.postAuth(ctx, authPrefix+"/login", req)
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	var srvErr serverError
	res, err := c.rc.R().
		SetContext(ctx).
		SetError(&srvErr).
		Post(authPrefix + "/logout")
	if err != nil {
		return err
	}
	if res.IsError() {
		return &Error{StatusCode: res.StatusCode(), Message: srvErr.Message}
	}
	return nil
}

// UpdateProfile updates profile fields and returns the fresh user record.
func (c *Client) UpdateProfile(ctx context.Context, req types.UpdateProfileRequest) (*types.User, error) {
	var user types.User
	var srvErr serverError
	res, err := c.rc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&user).
		SetError(&srvErr).
		Put(authPrefix + "/update-profile")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, &Error{StatusCode: res.StatusCode(), Message: srvErr.Message}
	}
	return &user, nil
}

func (c *Client) postAuth(ctx context.Context, path string, body any) (*types.AuthPayload, error) {
	var payload types.AuthPayload
	var srvErr serverError
	res, err := c.rc.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&payload).
		SetError(&srvErr).
		Post(path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, &Error{StatusCode: res.StatusCode(), Message: srvErr.Message}
	}
	return &payload, nil
}
