package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/scriptbot/internal/apperr"
	"github.com/ehrlich-b/scriptbot/internal/store"
)

// DefaultTTL is the inactivity timeout after which an idle session is
// evicted (spec §4.6).
const DefaultTTL = 300 * time.Second

// userStore is the subset of internal/store.Store the registry needs
// for login/register (spec §4.6).
type userStore interface {
	Verify(ctx context.Context, username, passwd string) (store.VerifyResult, error)
	InsertDefault(ctx context.Context, username, passwd string) error
}

// Registry owns every live Session, keyed by username, plus token
// issuance and the inactivity-TTL dispatcher (spec §4.6).
type Registry struct {
	mu    sync.RWMutex
	byUser map[string]*Session

	store  userStore
	tokens *tokenIssuer
	ttl    time.Duration
	timers *ttlScheduler
}

// New builds a Registry bound to store for credential checks, signing
// tokens with signingKey. ttl <= 0 selects DefaultTTL.
func New(st userStore, signingKey []byte, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		byUser: make(map[string]*Session),
		store:  st,
		tokens: newTokenIssuer(signingKey),
		ttl:    ttl,
	}
	r.timers = newTTLScheduler(r.evictIdle)
	return r
}

// Close stops the TTL dispatcher goroutine (spec §5 resource cleanup).
func (r *Registry) Close() {
	r.timers.stop()
}

// Connect creates a new guest Session at Welcome (stateIndex 0) and
// issues its token (spec §4.6).
func (r *Registry) Connect() (*Session, string, error) {
	username, err := r.freshGuestName()
	if err != nil {
		return nil, "", err
	}

	sess := newSession(username)

	r.mu.Lock()
	r.byUser[username] = sess
	r.mu.Unlock()

	r.timers.arm(username, r.ttl)

	token, err := r.tokens.issue(username)
	if err != nil {
		return nil, "", err
	}
	return sess, token, nil
}

// freshGuestName synthesizes "Guest_<nanoseconds><16 random hex
// digits>", re-drawing on a collision so it stays unique across the
// process lifetime (spec §4.6).
func (r *Registry) freshGuestName() (string, error) {
	for {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return "", fmt.Errorf("session: generate guest suffix: %w", err)
		}
		n := time.Now().UnixNano()
		name := fmt.Sprintf("Guest_%d%x", n, b)

		r.mu.RLock()
		_, exists := r.byUser[name]
		r.mu.RUnlock()
		if !exists {
			return name, nil
		}
	}
}

// Resolve verifies token and returns the live Session it names,
// resetting that session's inactivity deadline (spec §4.6).
func (r *Registry) Resolve(token string) (*Session, error) {
	username, err := r.tokens.verify(token)
	if err != nil {
		return nil, &apperr.InvalidToken{Reason: err.Error()}
	}

	r.mu.RLock()
	sess, ok := r.byUser[username]
	r.mu.RUnlock()
	if !ok {
		return nil, &apperr.InvalidToken{Reason: "session no longer live"}
	}

	r.timers.arm(username, r.ttl)
	return sess, nil
}

// Login authenticates sess as username/passwd, renaming its registry
// entry and issuing a fresh token on success (spec §4.6).
func (r *Registry) Login(ctx context.Context, sess *Session, username, passwd string) (string, error) {
	if username == "Guest" {
		return "", fmt.Errorf("session: Guest is not a loginable account")
	}

	result, err := r.store.Verify(ctx, username, passwd)
	if err != nil {
		return "", fmt.Errorf("session: verify %s: %w", username, err)
	}
	if result != store.VerifyOK {
		return "", fmt.Errorf("session: login failed for %s", username)
	}

	token, err := r.rename(sess, username)
	if err != nil {
		return "", err
	}
	sess.markLoggedIn()
	return token, nil
}

// Register creates username's row via InsertDefault, then renames
// sess into it exactly as Login does (spec §4.6).
func (r *Registry) Register(ctx context.Context, sess *Session, username, passwd string) (string, error) {
	if username == "Guest" {
		return "", fmt.Errorf("session: Guest is reserved")
	}
	if err := r.store.InsertDefault(ctx, username, passwd); err != nil {
		return "", fmt.Errorf("session: register %s: %w", username, err)
	}

	token, err := r.rename(sess, username)
	if err != nil {
		return "", err
	}
	sess.markLoggedIn()
	return token, nil
}

// rename moves sess's registry entry from its current username to
// newUsername under a single lock acquisition (spec §4.6/§9: "the
// race in rename" design note). It fails if another live session
// already holds newUsername.
func (r *Registry) rename(sess *Session, newUsername string) (string, error) {
	old := sess.Username()

	r.mu.Lock()
	if existing, ok := r.byUser[newUsername]; ok && existing != sess {
		r.mu.Unlock()
		return "", fmt.Errorf("session: %s is already in use by a live session", newUsername)
	}
	r.byUser[newUsername] = sess
	sess.rename(newUsername)
	delete(r.byUser, old)
	r.mu.Unlock()

	r.timers.cancel(old)
	r.timers.arm(newUsername, r.ttl)

	return r.tokens.issue(newUsername)
}

// Evict removes username's session, cancelling its TTL timer (spec
// §4.6). Safe to call whether or not the session is terminal.
func (r *Registry) Evict(username string) {
	r.mu.Lock()
	delete(r.byUser, username)
	r.mu.Unlock()
	r.timers.cancel(username)
}

func (r *Registry) evictIdle(username string) {
	r.Evict(username)
}

// Live reports whether username currently names a live session
// (spec §8 property 4).
func (r *Registry) Live(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[username]
	return ok
}
