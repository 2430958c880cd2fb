// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/identity"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeIdentity struct {
	mu sync.Mutex

	session    *identity.Session
	signInErr  error
	signUp     identity.SignUpResult
	refreshed  *identity.Session
	refreshErr error
	updated    *model.User
	updateErr  error
	logoutErr  error

	refreshCalls int
	logoutCalls  int
	lastUpdate   identity.UserUpdate
	lastOTPType  identity.OTPType
	lastRedirect string
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeIdentity) SignUp(ctx context.Context, p identity.SignUpParams) (identity.SignUpResult, error) {
	f.mu.Lock()
	f.lastRedirect = p.RedirectTo
	f.mu.Unlock()
	return f.signUp, nil
}

func (f *fakeIdentity) SendOTP(ctx context.Context, email, redirectTo string) error {
	f.mu.Lock()
	f.lastRedirect = redirectTo
	f.mu.Unlock()
	return nil
}

func (f *fakeIdentity) VerifyOTP(ctx context.Context, email, token string, typ identity.OTPType) (*identity.Session, error) {
	f.mu.Lock()
	f.lastOTPType = typ
	f.mu.Unlock()
	return f.session, nil
}

func (f *fakeIdentity) Resend(ctx context.Context, email string, typ identity.OTPType) error {
	f.mu.Lock()
	f.lastOTPType = typ
	f.mu.Unlock()
	return nil
}

func (f *fakeIdentity) Recover(ctx context.Context, email, redirectTo string) error { return nil }

func (f *fakeIdentity) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeIdentity) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	return &model.User{ID: "u-oauth", Email: "oauth@example.com"}, nil
}

func (f *fakeIdentity) UpdateUser(ctx context.Context, accessToken string, upd identity.UserUpdate) (*model.User, error) {
	f.mu.Lock()
	f.lastUpdate = upd
	f.mu.Unlock()
	return f.updated, f.updateErr
}

func (f *fakeIdentity) Logout(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeIdentity) AuthorizeURL(provider, redirectTo string) string {
	return "https://id.example.com/authorize?provider=" + provider
}

type fakeAccounts struct {
	err   error
	token string
	calls int
}

func (a *fakeAccounts) DeleteAccount(ctx context.Context, accessToken string) error {
	a.calls++
	a.token = accessToken
	return a.err
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSession(token string, expires time.Time) *identity.Session {
	return &identity.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		ExpiresAt:    expires.Unix(),
		User:         model.User{ID: "u1", Email: "ada@example.com"},
	}
}

func newTestProvider(t *testing.T, idp *fakeIdentity, opts ...Option) (*Provider, localstore.Store) {
	t.Helper()
	store := localstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	opts = append([]Option{WithClock(func() time.Time { return baseTime })}, opts...)
	return NewProvider(idp, store, opts...), store
}

// =============================================================================
// TESTS
// =============================================================================

func TestInitWithoutPersistedSession(t *testing.T) {
	p, _ := newTestProvider(t, &fakeIdentity{})
	assert.True(t, p.Loading())

	require.NoError(t, p.Init(context.Background()))
	assert.False(t, p.Loading())
	assert.Nil(t, p.User())
}

func TestSignInPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{session: testSession("tok-1", baseTime.Add(time.Hour))}
	p, store := newTestProvider(t, idp)
	require.NoError(t, p.Init(ctx))

	var got []EventKind
	unsubscribe := p.Subscribe(func(ev Event) { got = append(got, ev.Kind) })
	defer unsubscribe()

	require.NoError(t, p.SignIn(ctx, " ada@example.com ", "secret"))
	require.NotNil(t, p.User())
	assert.Equal(t, "u1", p.User().ID)
	assert.Equal(t, []EventKind{EventSignedIn}, got)

	// A second provider over the same store picks the session up.
	q := NewProvider(idp, store, WithClock(func() time.Time { return baseTime }))
	require.NoError(t, q.Init(ctx))
	require.NotNil(t, q.User())
	assert.Equal(t, "ada@example.com", q.User().Email)

	tok, err := q.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestSignInFailureLeavesSignedOut(t *testing.T) {
	idp := &fakeIdentity{signInErr: &identity.Error{Status: 400, Message: "Invalid login credentials"}}
	p, _ := newTestProvider(t, idp)

	err := p.SignIn(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials", err.Error())
	assert.Nil(t, p.User())
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{
		session:   testSession("old", baseTime.Add(30*time.Second)),
		refreshed: testSession("new", baseTime.Add(time.Hour)),
	}
	p, store := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	var refreshed bool
	defer p.Subscribe(func(ev Event) {
		if ev.Kind == EventTokenRefreshed {
			refreshed = true
		}
	})()

	tok, err := p.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.True(t, refreshed)
	assert.Equal(t, 1, idp.refreshCalls)

	var persisted identity.Session
	ok, err := localstore.GetJSON(ctx, store, localstore.SessionKey, &persisted)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", persisted.AccessToken)

	// Fresh token: no further refresh.
	_, err = p.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, idp.refreshCalls)
}

func TestAccessTokenRejectedRefreshSignsOut(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{
		session:    testSession("old", baseTime.Add(10*time.Second)),
		refreshErr: &identity.Error{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"},
	}
	p, store := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	_, err := p.AccessToken(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, p.User())

	_, ok, err := store.Get(ctx, localstore.SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessTokenNetworkFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{
		session:    testSession("old", baseTime.Add(10*time.Second)),
		refreshErr: errors.New("dial tcp: connection refused"),
	}
	p, _ := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	_, err := p.AccessToken(ctx)
	require.Error(t, err)
	assert.NotNil(t, p.User())
}

func TestInitDiscardsExpiredSession(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{refreshErr: &identity.Error{Status: http.StatusUnauthorized}}
	p, store := newTestProvider(t, idp)
	require.NoError(t, localstore.SetJSON(ctx, store, localstore.SessionKey, testSession("stale", baseTime.Add(-time.Hour))))

	require.NoError(t, p.Init(ctx))
	assert.Nil(t, p.User())
	assert.False(t, p.Loading())
}

func TestSignUpNeedsConfirmation(t *testing.T) {
	idp := &fakeIdentity{signUp: identity.SignUpResult{User: model.User{ID: "u2"}}}
	p, _ := newTestProvider(t, idp, WithRedirectURL("http://localhost:3000"))

	needs, err := p.SignUp(context.Background(), "new@example.com", "secret1", "Ada")
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Nil(t, p.User())
	assert.Equal(t, "http://localhost:3000", idp.lastRedirect)
}

func TestVerifyOTPDefaultsToSignup(t *testing.T) {
	idp := &fakeIdentity{session: testSession("tok", baseTime.Add(time.Hour))}
	p, _ := newTestProvider(t, idp)

	require.NoError(t, p.VerifyOTP(context.Background(), "ada@example.com", "123456", ""))
	assert.Equal(t, identity.OTPSignup, idp.lastOTPType)
	assert.NotNil(t, p.User())

	require.NoError(t, p.ResendOTP(context.Background(), "ada@example.com", identity.OTPRecovery))
	assert.Equal(t, identity.OTPRecovery, idp.lastOTPType)
}

func TestUpdateEmailIsOptimistic(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{session: testSession("tok", baseTime.Add(time.Hour))}
	p, _ := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	var updated bool
	defer p.Subscribe(func(ev Event) { updated = ev.Kind == EventUserUpdated })()

	require.NoError(t, p.UpdateEmail(ctx, " new@example.com "))
	assert.Equal(t, "new@example.com", idp.lastUpdate.Email)
	assert.Equal(t, "ada@example.com", p.User().Email)
	assert.Equal(t, "new@example.com", p.User().NewEmail)
	assert.True(t, updated)

	require.ErrorIs(t, p.UpdateEmail(ctx, "  "), ErrEmptyEmail)
}

func TestUpdateProfileSetsDisplayName(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{session: testSession("tok", baseTime.Add(time.Hour))}
	p, _ := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	require.NoError(t, p.UpdateProfile(ctx, " Ada Lovelace "))
	assert.Equal(t, "Ada Lovelace", idp.lastUpdate.Data["display_name"])
	assert.Equal(t, "Ada Lovelace", idp.lastUpdate.Data["full_name"])
	assert.Equal(t, "Ada Lovelace", p.User().DisplayName())
}

func TestUpdateProfileFailureKeepsUser(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{
		session:   testSession("tok", baseTime.Add(time.Hour)),
		updateErr: &identity.Error{Status: 422, Message: "bad"},
	}
	p, _ := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	require.Error(t, p.UpdateProfile(ctx, "Ada"))
	assert.Equal(t, "ada", p.User().DisplayName())
}

func TestDeleteAccountWithoutSession(t *testing.T) {
	accounts := &fakeAccounts{}
	p, _ := newTestProvider(t, &fakeIdentity{}, WithAccountService(accounts))

	err := p.DeleteAccount(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, "No active session", err.Error())
	assert.Zero(t, accounts.calls)
}

func TestDeleteAccountSignsOutAfterBackend(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{session: testSession("tok", baseTime.Add(time.Hour))}
	accounts := &fakeAccounts{}
	p, _ := newTestProvider(t, idp)
	p.SetAccountService(accounts)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	require.NoError(t, p.DeleteAccount(ctx))
	assert.Equal(t, "tok", accounts.token)
	assert.Nil(t, p.User())
	assert.Equal(t, 1, idp.logoutCalls)
}

func TestDeleteAccountBackendFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{session: testSession("tok", baseTime.Add(time.Hour))}
	accounts := &fakeAccounts{err: &api.APIError{Status: 500, Detail: "Database unavailable"}}
	p, _ := newTestProvider(t, idp, WithAccountService(accounts))
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	err := p.DeleteAccount(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Database unavailable")
	assert.NotNil(t, p.User())
	assert.Zero(t, idp.logoutCalls)
}

func TestSignOutClearsEvenWhenLogoutFails(t *testing.T) {
	ctx := context.Background()
	idp := &fakeIdentity{
		session:   testSession("tok", baseTime.Add(time.Hour)),
		logoutErr: errors.New("offline"),
	}
	p, store := newTestProvider(t, idp)
	require.NoError(t, p.SignIn(ctx, "ada@example.com", "pw"))

	var last Event
	defer p.Subscribe(func(ev Event) { last = ev })()

	require.NoError(t, p.SignOut(ctx))
	assert.Nil(t, p.User())
	assert.Equal(t, EventSignedOut, last.Kind)
	assert.Nil(t, last.User)

	_, ok, _ := store.Get(ctx, localstore.SessionKey)
	assert.False(t, ok)
}

func TestCompleteOAuthFetchesUser(t *testing.T) {
	p, _ := newTestProvider(t, &fakeIdentity{})
	redirect := "http://localhost:3000/#access_token=abc&refresh_token=def&expires_in=3600&token_type=bearer"

	require.NoError(t, p.CompleteOAuth(context.Background(), redirect))
	require.NotNil(t, p.User())
	assert.Equal(t, "u-oauth", p.User().ID)
	assert.Contains(t, p.OAuthURL("google"), "provider=google")
}

func TestPasswordResetFlag(t *testing.T) {
	p, _ := newTestProvider(t, &fakeIdentity{})
	assert.False(t, p.PasswordResetInProgress())
	p.SetPasswordResetInProgress(true)
	assert.True(t, p.PasswordResetInProgress())
	p.SetPasswordResetInProgress(false)
	assert.False(t, p.PasswordResetInProgress())
}
