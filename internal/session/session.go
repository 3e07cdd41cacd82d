package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go-chemviz-dashboard-ui/internal/dataset"
)

// State is the authentication lifecycle of one session.
type State string

const (
	Unauthenticated State = "unauthenticated"
	Authenticated   State = "authenticated"
)

// HistoryLister is the slice of the backend client the session layer needs
// for activation.
type HistoryLister interface {
	ListHistory(ctx context.Context, token string) ([]dataset.Dataset, error)
}

// Controller owns one authenticated session: its credential, its dataset
// store and its activation lifecycle. Activation fetches the upload history
// exactly once; repeated Activate calls are no-ops until Deactivate.
type Controller struct {
	mu        sync.Mutex
	token     string
	username  string
	state     State
	activated bool
	store     *dataset.Store
}

// NewController builds a controller holding the given credential.
func NewController(token, username string) *Controller {
	return &Controller{
		token:    token,
		username: username,
		state:    Authenticated,
		store:    dataset.NewStore(),
	}
}

// Token returns the bearer credential this session was created with.
func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Username returns the login name, or "" for sessions restored from a bare
// token.
func (c *Controller) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Store returns the session's dataset store.
func (c *Controller) Store() *dataset.Store {
	return c.store
}

// Subject derives a stable, non-reversible identifier for this session's
// credential, used as the preferences key so raw tokens never reach disk.
func (c *Controller) Subject() string {
	return Subject(c.Token())
}

// Subject hashes a bearer token into a short stable identifier.
func Subject(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

// Activate performs the post-login bootstrap: one history fetch, stored
// wholesale. A fetch failure leaves the session usable and marks the history
// stale; the error is returned so the caller can log it. Unauthenticated
// (401) failures are returned as-is without marking stale, since the whole
// session is about to be dropped.
func (c *Controller) Activate(ctx context.Context, lister HistoryLister) error {
	c.mu.Lock()
	if c.state != Authenticated || c.activated {
		c.mu.Unlock()
		return nil
	}
	c.activated = true
	token := c.token
	c.mu.Unlock()

	items, err := lister.ListHistory(ctx, token)
	if err != nil {
		c.store.MarkStale()
		return err
	}
	c.store.ReplaceHistory(items)
	return nil
}

// RefreshHistory refetches the history on demand, independent of activation.
func (c *Controller) RefreshHistory(ctx context.Context, lister HistoryLister) error {
	c.mu.Lock()
	token := c.token
	state := c.state
	c.mu.Unlock()
	if state != Authenticated {
		return nil
	}

	items, err := lister.ListHistory(ctx, token)
	if err != nil {
		c.store.MarkStale()
		return err
	}
	c.store.ReplaceHistory(items)
	return nil
}

// Deactivate ends the session. The credential and all dataset state are
// discarded; the controller cannot be reused.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.username = ""
	c.state = Unauthenticated
	c.activated = false
}

// Registry maps bearer tokens to live session controllers. Browsers that
// kept a token across restarts get a fresh controller lazily, activated on
// first use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Controller)}
}

// Put registers a freshly logged-in session under its token.
func (r *Registry) Put(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[c.Token()] = c
}

// Get returns the controller for a token, creating one for unknown tokens.
// The second return reports whether the controller already existed.
func (r *Registry) Get(token string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[token]; ok {
		return c, true
	}
	c := NewController(token, "")
	r.sessions[token] = c
	return c, false
}

// Drop deactivates and removes the session for a token. Used on logout and
// whenever the backend rejects the credential.
func (r *Registry) Drop(token string) {
	r.mu.Lock()
	c, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()
	if ok {
		c.Deactivate()
	}
}

// Len reports the number of live sessions, for the status endpoint.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
