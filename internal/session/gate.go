/**
 * @description
 * Package session implements the operator session gate: a two-state machine
 * (LoggedOut, LoggedIn) that owns the live subscriptions and the versioned in-memory
 * snapshot the engine decides against. While logged out there are no subscriptions, no
 * snapshot and no way to reach the engine.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: HS256 session tokens.
 * - golang.org/x/crypto/bcrypt: optional admin password verification.
 * - github.com/google/uuid: session identifiers carried in the token id claim.
 */

package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/admin-service/internal/domain"
	"github.com/transfa/admin-service/internal/live"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrSessionClosed      = errors.New("session is logged out")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrInvalidNavigation  = errors.New("invalid navigation")
)

// State is the gate state.
type State string

const (
	StateLoggedOut State = "logged_out"
	StateLoggedIn  State = "logged_in"
)

// Subscriber is the live-collection capability the gate subscribes through.
type Subscriber interface {
	SubscribeUsers(ctx context.Context, fn func([]domain.User)) (live.Unsubscribe, error)
	SubscribeAgents(ctx context.Context, fn func([]domain.Agent)) (live.Unsubscribe, error)
	SubscribeTransactions(ctx context.Context, fn func([]domain.Transaction)) (live.Unsubscribe, error)
	SubscribeDepositMethods(ctx context.Context, fn func([]domain.DepositMethod)) (live.Unsubscribe, error)
	SubscribeSettings(ctx context.Context, fn func(domain.Settings)) (live.Unsubscribe, error)
}

// Config tunes the gate.
type Config struct {
	Secret       []byte
	TTL          time.Duration
	PasswordHash string // bcrypt; empty accepts any login
	Now          func() time.Time
}

// Status is the externally visible gate state.
type Status struct {
	State      State      `json:"state"`
	Navigation Navigation `json:"navigation"`
	Version    uint64     `json:"snapshot_version"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Gate guards access to the snapshot and everything behind it.
type Gate struct {
	feed   Subscriber
	cfg    Config
	logger *slog.Logger

	// lifecycle serialises Login and Logout. Pushes only take mu.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     State
	gen       uint64
	nav       Navigation
	snap      domain.Snapshot
	unsubs    []live.Unsubscribe
	sessionID string
	expiresAt time.Time
}

// NewGate creates a logged-out gate. A missing secret is replaced by a random one, which
// invalidates tokens across restarts.
func NewGate(feed Subscriber, cfg Config, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if len(cfg.Secret) == 0 {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.Secret = secret
		logger.Warn("SESSION_SECRET not set; using an ephemeral secret")
	}
	return &Gate{
		feed:   feed,
		cfg:    cfg,
		logger: logger.With("component", "session_gate"),
		state:  StateLoggedOut,
		nav:    DefaultNavigation(),
	}, nil
}

// Login moves the gate to LoggedIn, subscribing to every live collection. Logging in
// again while logged in rotates the token and keeps the subscriptions.
func (g *Gate) Login(ctx context.Context, password string) (Token, error) {
	if err := g.verifyPassword(password); err != nil {
		g.logger.Warn("login rejected")
		return Token{}, err
	}

	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	g.mu.RLock()
	loggedIn := g.state == StateLoggedIn
	g.mu.RUnlock()
	if loggedIn {
		return g.issue()
	}

	g.mu.Lock()
	g.gen++
	gen := g.gen
	g.snap = domain.Snapshot{}
	g.mu.Unlock()

	unsubs, err := g.subscribeAll(ctx, gen)
	if err != nil {
		for _, u := range unsubs {
			u()
		}
		g.mu.Lock()
		g.gen++
		g.snap = domain.Snapshot{}
		g.mu.Unlock()
		g.logger.Error("login failed to subscribe", "error", err)
		return Token{}, err
	}

	g.mu.Lock()
	g.state = StateLoggedIn
	g.unsubs = unsubs
	g.nav = DefaultNavigation()
	version := g.snap.Version
	g.mu.Unlock()

	g.logger.Info("operator logged in", "snapshot_version", version)
	return g.issue()
}

// Logout moves the gate to LoggedOut: subscriptions end, the snapshot is dropped and
// navigation returns to its default. Logging out twice is harmless.
func (g *Gate) Logout() {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	g.mu.Lock()
	if g.state == StateLoggedOut {
		g.mu.Unlock()
		return
	}
	unsubs := g.unsubs
	g.unsubs = nil
	g.gen++
	g.state = StateLoggedOut
	g.snap = domain.Snapshot{}
	g.nav = DefaultNavigation()
	g.sessionID = ""
	g.expiresAt = time.Time{}
	g.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	g.logger.Info("operator logged out")
}

// Snapshot returns the current snapshot. Slices in it are replaced, never mutated, by
// later pushes, so the caller may read them without locking.
func (g *Gate) Snapshot() (domain.Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != StateLoggedIn {
		return domain.Snapshot{}, ErrSessionClosed
	}
	return g.snap, nil
}

// LoggedIn reports whether the gate is open.
func (g *Gate) LoggedIn() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateLoggedIn
}

// Status reports the gate state, navigation and snapshot version.
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Status{State: g.state, Navigation: g.nav, Version: g.snap.Version}
	if g.state == StateLoggedIn {
		expires := g.expiresAt
		st.ExpiresAt = &expires
	}
	return st
}

// Navigation returns the current selection state.
func (g *Gate) Navigation() Navigation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nav
}

// SetNavigation replaces the selection state of the open session.
func (g *Gate) SetNavigation(nav Navigation) error {
	if _, err := ParseTab(string(nav.ActiveTab)); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateLoggedIn {
		return ErrSessionClosed
	}
	g.nav = nav
	return nil
}

// Authenticate checks a bearer token against the open session. Tokens of an earlier
// session, or any token while logged out, are refused with ErrSessionClosed.
func (g *Gate) Authenticate(raw string) error {
	claims, err := parseToken(g.cfg.Secret, raw, g.cfg.Now)
	if err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != StateLoggedIn || claims.ID != g.sessionID {
		return ErrSessionClosed
	}
	return nil
}

func (g *Gate) verifyPassword(password string) error {
	if g.cfg.PasswordHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(g.cfg.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// issue rotates the session id and signs a token for it. Caller holds lifecycle.
func (g *Gate) issue() (Token, error) {
	sessionID := uuid.NewString()
	token, err := signToken(g.cfg.Secret, sessionID, g.cfg.Now(), g.cfg.TTL)
	if err != nil {
		return Token{}, err
	}
	g.mu.Lock()
	g.sessionID = sessionID
	g.expiresAt = token.ExpiresAt
	g.mu.Unlock()
	return token, nil
}

func (g *Gate) subscribeAll(ctx context.Context, gen uint64) ([]live.Unsubscribe, error) {
	unsubs := make([]live.Unsubscribe, 0, len(domain.AllCollections))

	u, err := g.feed.SubscribeUsers(ctx, func(users []domain.User) {
		g.apply(gen, func(s *domain.Snapshot) { s.Users = users })
	})
	if err != nil {
		return unsubs, err
	}
	unsubs = append(unsubs, u)

	u, err = g.feed.SubscribeAgents(ctx, func(agents []domain.Agent) {
		g.apply(gen, func(s *domain.Snapshot) { s.Agents = agents })
	})
	if err != nil {
		return unsubs, err
	}
	unsubs = append(unsubs, u)

	u, err = g.feed.SubscribeTransactions(ctx, func(txs []domain.Transaction) {
		g.apply(gen, func(s *domain.Snapshot) { s.Transactions = txs })
	})
	if err != nil {
		return unsubs, err
	}
	unsubs = append(unsubs, u)

	u, err = g.feed.SubscribeDepositMethods(ctx, func(methods []domain.DepositMethod) {
		g.apply(gen, func(s *domain.Snapshot) { s.DepositMethods = methods })
	})
	if err != nil {
		return unsubs, err
	}
	unsubs = append(unsubs, u)

	u, err = g.feed.SubscribeSettings(ctx, func(settings domain.Settings) {
		g.apply(gen, func(s *domain.Snapshot) { s.Settings = settings })
	})
	if err != nil {
		return unsubs, err
	}
	unsubs = append(unsubs, u)

	return unsubs, nil
}

// apply folds one push into the snapshot unless it belongs to an older session.
func (g *Gate) apply(gen uint64, update func(*domain.Snapshot)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return
	}
	update(&g.snap)
	g.snap.Version++
}
