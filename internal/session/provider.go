// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/events"
	"github.com/jeranaias/arkiv-tui/internal/identity"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/logging"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoSession is returned by operations that need a signed-in user.
	ErrNoSession = errors.New("No active session")

	// ErrSessionExpired means the refresh token was rejected and the user
	// has been signed out locally.
	ErrSessionExpired = errors.New("session expired, please sign in again")

	ErrEmptyName  = errors.New("display name must not be empty")
	ErrEmptyEmail = errors.New("Please enter a new email address")
)

// DefaultRefreshMargin is how close to expiry an access token may get before
// AccessToken refreshes it.
const DefaultRefreshMargin = 60 * time.Second

// =============================================================================
// COLLABORATORS
// =============================================================================

// Identity is the subset of the identity provider client the Provider uses.
type Identity interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, p identity.SignUpParams) (identity.SignUpResult, error)
	SendOTP(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, email, token string, typ identity.OTPType) (*identity.Session, error)
	Resend(ctx context.Context, email string, typ identity.OTPType) error
	Recover(ctx context.Context, email, redirectTo string) error
	RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error)
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
	UpdateUser(ctx context.Context, accessToken string, upd identity.UserUpdate) (*model.User, error)
	Logout(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo string) string
}

// AccountService removes the signed-in user's account on the backend.
type AccountService interface {
	DeleteAccount(ctx context.Context, accessToken string) error
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies an auth-state change.
type EventKind int

const (
	EventSignedIn EventKind = iota
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventTokenRefreshed:
		return "token_refreshed"
	case EventUserUpdated:
		return "user_updated"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every auth-state change. User is nil
// after sign-out.
type Event struct {
	Kind EventKind
	User *model.User
}

// =============================================================================
// PROVIDER
// =============================================================================

// Provider owns the current session.
type Provider struct {
	idp      Identity
	store    localstore.Store
	bus      *events.Bus[Event]
	log      zerolog.Logger
	now      func() time.Time
	margin   time.Duration
	redirect string

	accountsMu sync.RWMutex
	accounts   AccountService

	mu      sync.RWMutex
	session *identity.Session
	loading bool

	// refreshMu serializes token refreshes so concurrent callers share one.
	refreshMu sync.Mutex

	resetInProgress atomic.Bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithAccountService sets the backend used by DeleteAccount.
func WithAccountService(a AccountService) Option {
	return func(p *Provider) { p.accounts = a }
}

// WithRedirectURL sets the URL placed in confirmation and magic-link emails.
func WithRedirectURL(u string) Option {
	return func(p *Provider) { p.redirect = u }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.log = l.With().Str("component", "session").Logger() }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func WithRefreshMargin(d time.Duration) Option {
	return func(p *Provider) { p.margin = d }
}

// WithBus shares an existing event bus.
func WithBus(b *events.Bus[Event]) Option {
	return func(p *Provider) { p.bus = b }
}

// NewProvider creates a Provider. It reports Loading until Init runs.
func NewProvider(idp Identity, store localstore.Store, opts ...Option) *Provider {
	p := &Provider{
		idp:     idp,
		store:   store,
		log:     zerolog.Nop(),
		now:     time.Now,
		margin:  DefaultRefreshMargin,
		loading: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bus == nil {
		p.bus = events.NewBus[Event]()
	}
	return p
}

// SetAccountService sets the account backend after construction. The API
// gateway needs the Provider as its token source, so the two are wired in
// two steps.
func (p *Provider) SetAccountService(a AccountService) {
	p.accountsMu.Lock()
	p.accounts = a
	p.accountsMu.Unlock()
}

// Init restores the persisted session, refreshing it when it is about to
// expire. A session that cannot be refreshed is discarded. Init always
// clears the loading state.
func (p *Provider) Init(ctx context.Context) error {
	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	var stored identity.Session
	ok, err := localstore.GetJSON(ctx, p.store, localstore.SessionKey, &stored)
	if err != nil {
		p.log.Warn().Err(err).Msg("discarding unreadable persisted session")
		_ = p.store.Delete(ctx, localstore.SessionKey)
		return nil
	}
	if !ok || stored.AccessToken == "" {
		return nil
	}

	s := &stored
	if s.ExpiresWithin(p.margin, p.now()) {
		fresh, err := p.idp.RefreshSession(ctx, s.RefreshToken)
		if err != nil {
			if isRejected(err) {
				p.log.Info().Err(err).Msg("persisted session expired")
				_ = p.store.Delete(ctx, localstore.SessionKey)
				return nil
			}
			return fmt.Errorf("refresh session: %w", err)
		}
		if fresh.User.ID == "" {
			fresh.User = stored.User
		}
		s = fresh
		if err := p.persist(ctx, s); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.log.Debug().Str("user", logging.RedactEmail(s.User.Email)).Msg("session restored")
	p.publish(EventSignedIn)
	return nil
}

// Loading reports whether the initial session lookup is still pending.
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// User returns a copy of the signed-in user, or nil.
func (p *Provider) User() *model.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	u := p.session.User
	return &u
}

// Expiry returns when the current access token expires (zero when signed
// out or unknown).
func (p *Provider) Expiry() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return time.Time{}
	}
	return p.session.Expiry()
}

// Subscribe registers fn for auth-state changes.
func (p *Provider) Subscribe(fn func(Event)) (unsubscribe func()) {
	return p.bus.Subscribe(fn)
}

// SetPasswordResetInProgress marks the multi-step password reset as running.
// While set, front ends keep showing the auth screen even though the
// recovery code signed the user in.
func (p *Provider) SetPasswordResetInProgress(v bool) {
	p.resetInProgress.Store(v)
}

func (p *Provider) PasswordResetInProgress() bool {
	return p.resetInProgress.Load()
}

// =============================================================================
// TOKENS
// =============================================================================

// AccessToken returns a valid access token, refreshing it first when it
// expires within the refresh margin.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()
	if s == nil {
		return "", ErrNoSession
	}
	if !s.ExpiresWithin(p.margin, p.now()) || s.RefreshToken == "" {
		return s.AccessToken, nil
	}

	fresh, err := p.idp.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		if isRejected(err) {
			p.log.Info().Err(err).Msg("refresh token rejected")
			p.clear(ctx)
			return "", ErrSessionExpired
		}
		return "", fmt.Errorf("refresh session: %w", err)
	}
	if fresh.User.ID == "" {
		fresh.User = s.User
	}
	if err := p.persist(ctx, fresh); err != nil {
		p.log.Warn().Err(err).Msg("persist refreshed session")
	}
	p.mu.Lock()
	p.session = fresh
	p.mu.Unlock()
	p.publish(EventTokenRefreshed)
	return fresh.AccessToken, nil
}

// isRejected reports whether the identity provider refused the credentials
// (as opposed to being unreachable).
func isRejected(err error) bool {
	var ierr *identity.Error
	if !errors.As(err, &ierr) {
		return false
	}
	return ierr.Status >= http.StatusBadRequest && ierr.Status < http.StatusInternalServerError
}

// =============================================================================
// SIGN IN / OUT
// =============================================================================

// SignIn signs in with email and password.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	s, err := p.idp.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return err
	}
	return p.establish(ctx, s)
}

// SignUp registers a new account. It reports whether the email must be
// confirmed with a code before the account can sign in.
func (p *Provider) SignUp(ctx context.Context, email, password, name string) (needsConfirmation bool, err error) {
	res, err := p.idp.SignUp(ctx, identity.SignUpParams{
		Email:       strings.TrimSpace(email),
		Password:    password,
		DisplayName: strings.TrimSpace(name),
		RedirectTo:  p.redirect,
	})
	if err != nil {
		return false, err
	}
	if res.NeedsConfirmation() {
		return true, nil
	}
	return false, p.establish(ctx, res.Session)
}

// SendMagicLink emails a sign-in link (and code) to email.
func (p *Provider) SendMagicLink(ctx context.Context, email string) error {
	return p.idp.SendOTP(ctx, strings.TrimSpace(email), p.redirect)
}

// VerifyOTP exchanges an emailed code for a session.
func (p *Provider) VerifyOTP(ctx context.Context, email, code string, typ identity.OTPType) error {
	if typ == "" {
		typ = identity.OTPSignup
	}
	s, err := p.idp.VerifyOTP(ctx, strings.TrimSpace(email), strings.TrimSpace(code), typ)
	if err != nil {
		return err
	}
	return p.establish(ctx, s)
}

// ResendOTP sends a fresh code of the given type.
func (p *Provider) ResendOTP(ctx context.Context, email string, typ identity.OTPType) error {
	if typ == "" {
		typ = identity.OTPSignup
	}
	return p.idp.Resend(ctx, strings.TrimSpace(email), typ)
}

// ResetPassword emails a recovery code.
func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	return p.idp.Recover(ctx, strings.TrimSpace(email), p.redirect)
}

// OAuthURL returns the browser URL that starts sign-in with provider.
func (p *Provider) OAuthURL(provider string) string {
	return p.idp.AuthorizeURL(provider, p.redirect)
}

// CompleteOAuth finishes an OAuth sign-in from the URL the browser was
// redirected to.
func (p *Provider) CompleteOAuth(ctx context.Context, redirectURL string) error {
	s, err := identity.SessionFromRedirect(redirectURL)
	if err != nil {
		return err
	}
	if s.User.ID == "" {
		u, err := p.idp.GetUser(ctx, s.AccessToken)
		if err != nil {
			return err
		}
		s.User = *u
	}
	return p.establish(ctx, s)
}

// SignOut ends the session. The local session is always discarded, even
// when the provider cannot be reached.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()
	if s == nil {
		return nil
	}
	if err := p.idp.Logout(ctx, s.AccessToken); err != nil {
		p.log.Warn().Err(err).Msg("remote logout failed")
	}
	p.clear(ctx)
	return nil
}

// =============================================================================
// PROFILE
// =============================================================================

// UpdateProfile sets the display name.
func (p *Provider) UpdateProfile(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	u, err := p.updateUser(ctx, identity.UserUpdate{Data: map[string]any{
		"display_name": name,
		"full_name":    name,
	}})
	if err != nil {
		return err
	}
	p.replaceUser(ctx, func(cur *model.User) {
		if u != nil && u.ID != "" {
			*cur = *u
		}
		if cur.Metadata == nil {
			cur.Metadata = map[string]any{}
		}
		cur.Metadata["display_name"] = name
		cur.Metadata["full_name"] = name
	})
	return nil
}

// UpdateEmail requests an email change. The provider emails a confirmation
// link to the new address; until then the user carries it as NewEmail.
func (p *Provider) UpdateEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyEmail
	}
	u, err := p.updateUser(ctx, identity.UserUpdate{Email: email})
	if err != nil {
		return err
	}
	p.replaceUser(ctx, func(cur *model.User) {
		if u != nil && u.ID != "" {
			*cur = *u
		}
		if cur.NewEmail == "" && cur.Email != email {
			cur.NewEmail = email
		}
	})
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (p *Provider) UpdatePassword(ctx context.Context, password string) error {
	_, err := p.updateUser(ctx, identity.UserUpdate{Password: password})
	return err
}

// DeleteAccount removes the account on the backend and then signs out. The
// session is kept when the backend refuses.
func (p *Provider) DeleteAccount(ctx context.Context) error {
	token, err := p.AccessToken(ctx)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return ErrNoSession
		}
		return err
	}

	p.accountsMu.RLock()
	accounts := p.accounts
	p.accountsMu.RUnlock()
	if accounts == nil {
		return errors.New("account service not configured")
	}
	if err := accounts.DeleteAccount(ctx, token); err != nil {
		return err
	}
	p.log.Info().Msg("account deleted")
	return p.SignOut(ctx)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (p *Provider) updateUser(ctx context.Context, upd identity.UserUpdate) (*model.User, error) {
	token, err := p.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return p.idp.UpdateUser(ctx, token, upd)
}

func (p *Provider) replaceUser(ctx context.Context, mutate func(*model.User)) {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return
	}
	next := *p.session
	next.User.Metadata = maps.Clone(next.User.Metadata)
	mutate(&next.User)
	p.session = &next
	p.mu.Unlock()

	if err := p.persist(ctx, &next); err != nil {
		p.log.Warn().Err(err).Msg("persist updated user")
	}
	p.publish(EventUserUpdated)
}

func (p *Provider) establish(ctx context.Context, s *identity.Session) error {
	if s == nil || s.AccessToken == "" {
		return errors.New("identity provider returned no session")
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = p.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if err := p.persist(ctx, s); err != nil {
		return err
	}
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.log.Info().Str("user", logging.RedactEmail(s.User.Email)).Msg("signed in")
	p.publish(EventSignedIn)
	return nil
}

func (p *Provider) persist(ctx context.Context, s *identity.Session) error {
	if err := localstore.SetJSON(ctx, p.store, localstore.SessionKey, s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (p *Provider) clear(ctx context.Context) {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	if err := p.store.Delete(ctx, localstore.SessionKey); err != nil {
		p.log.Warn().Err(err).Msg("remove persisted session")
	}
	p.log.Info().Msg("signed out")
	p.publish(EventSignedOut)
}

func (p *Provider) publish(kind EventKind) {
	p.bus.Publish(Event{Kind: kind, User: p.User()})
}
