// Package session owns the client's authentication state and is the only
// writer of the token slot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/result"
	"github.com/example/ec-storefront/internal/storage"
)

// ErrNoRefreshToken is returned by Refresh when the slot holds no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token stored")

const (
	msgLoginFailed      = "Login failed"
	msgRegistered       = "Registration successful! Check your email to verify."
	msgRegisterFailed   = "Registration failed"
	msgVerifyFailed     = "Email verification failed"
	msgVerified         = "Email verified successfully"
	msgForgotFailed     = "Failed to send reset email"
	msgForgotSent       = "Password reset email sent"
	msgResetFailed      = "Password reset failed"
	msgResetDone        = "Password reset successful"
	msgResendFailed     = "Failed to resend verification email"
	msgResendSent       = "Verification email sent"
	msgProfileFailed    = "Profile update failed"
	msgAvatarFailed     = "Avatar upload failed"
	msgPasswordFailed   = "Password update failed"
	msgPasswordUpdated  = "Password updated successfully"
	msgAddressAddFailed = "Address addition failed"
	msgAddressUpdFailed = "Address update failed"
	msgAddressDelFailed = "Address deletion failed"
	msgNotAuthenticated = "Please log in to continue"
)

// API is the subset of the HTTP client the store needs.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out apiclient.Payload) (*apiclient.Response, error)
}

// TokenSlot is the writable token slot.
type TokenSlot interface {
	storage.TokenReader
	Save(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context) error
}

// Store is the auth session store.
type Store struct {
	api    API
	tokens TokenSlot

	mu      sync.RWMutex
	session Session

	// notifyMu orders session transitions with their delivery to subscribers.
	notifyMu    sync.Mutex
	subMu       sync.Mutex
	subscribers map[int]func(Session)
	nextSubID   int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewStore creates an unauthenticated store. Call RestoreSession once at startup.
func NewStore(api API, tokens TokenSlot) *Store {
	return &Store{
		api:         api,
		tokens:      tokens,
		subscribers: make(map[int]func(Session)),
		ready:       make(chan struct{}),
	}
}

// Current returns a copy of the current session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// IsAuthenticated reports whether a user is logged in.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Authenticated
}

// IsAdmin reports whether the logged-in user is an administrator.
func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAdmin()
}

// Subscribe registers fn to receive every session transition in order.
// fn runs synchronously and must not call back into the store's mutating
// operations. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// Ready is closed once RestoreSession has completed.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until RestoreSession has completed or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Store) setSession(next Session) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.session = next
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(Session), 0, len(s.subscribers))
	for id := 0; id < s.nextSubID; id++ {
		if fn, ok := s.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
}

// updateIfCurrent applies fn to the session only if userID is still logged in.
func (s *Store) updateIfCurrent(userID string, fn func(*Session)) (Session, bool) {
	s.mu.RLock()
	cur := s.session.clone()
	s.mu.RUnlock()
	if !cur.Authenticated || cur.UserID != userID {
		return cur, false
	}
	fn(&cur)
	s.setSession(cur)
	return cur.clone(), true
}

// ============================================
// Authentication
// ============================================

// Login authenticates with email and password. On failure neither the
// session nor the token slot changes.
func (s *Store) Login(ctx context.Context, creds Credentials) result.Result[Session] {
	if err := creds.Validate(); err != nil {
		return result.Fail[Session](err.Error())
	}

	var out authPayload
	req := apiclient.Request{Method: http.MethodPost, Path: "/auth/login", Body: creds, Public: true}
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		return result.Fail[Session](apiclient.Message(err, msgLoginFailed))
	}

	if err := s.tokens.Save(ctx, out.Token, out.RefreshToken); err != nil {
		log.Printf("[Auth] Failed to persist tokens: %v", err)
		_ = s.tokens.Clear(ctx)
		return result.Fail[Session](msgLoginFailed)
	}

	sess := fromUser(out.User)
	s.setSession(sess)
	log.Printf("[Auth] Logged in: %s", sess.UserID)
	return result.OK(sess.clone())
}

// Register creates an account. It never logs the user in: the account must
// be verified by email before the first login.
func (s *Store) Register(ctx context.Context, reg Registration) result.Result[string] {
	if err := reg.Validate(); err != nil {
		return result.Fail[string](err.Error())
	}

	req := apiclient.Request{Method: http.MethodPost, Path: "/auth/register", Body: reg, Public: true}
	res, err := s.api.Do(ctx, req, nil)
	if err != nil {
		return result.Fail[string](apiclient.Message(err, msgRegisterFailed))
	}
	return result.OK(messageOr(res, msgRegistered))
}

// Logout invalidates the session remotely when possible and always clears
// local state.
func (s *Store) Logout(ctx context.Context) {
	if s.tokens.AccessToken(ctx) != "" {
		req := apiclient.Request{Method: http.MethodPost, Path: "/auth/logout"}
		if _, err := s.api.Do(ctx, req, nil); err != nil {
			log.Printf("[Auth] Logout request failed, clearing local session anyway: %v", err)
		}
	}
	s.clearLocal(ctx)
	log.Printf("[Auth] Logged out")
}

// RestoreSession resolves a persisted token into a session. It is meant to
// run once at startup; Ready is closed when it returns.
func (s *Store) RestoreSession(ctx context.Context) result.Result[Session] {
	defer s.markReady()

	if s.tokens.AccessToken(ctx) == "" {
		return result.OK(Session{})
	}

	user, err := s.fetchMe(ctx)
	if err != nil {
		log.Printf("[Auth] Session restore failed: %v", err)
		s.clearLocal(ctx)
		return result.Fail[Session](apiclient.Message(err, apiclient.SessionExpiredMessage))
	}

	sess := fromUser(user)
	s.setSession(sess)
	return result.OK(sess.clone())
}

// Refresh exchanges the stored refresh token for a new token pair. It is the
// HTTP client's Refresher.
func (s *Store) Refresh(ctx context.Context) error {
	refresh := s.tokens.RefreshToken(ctx)
	if refresh == "" {
		return ErrNoRefreshToken
	}

	var out tokenPayload
	req := apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   map[string]string{"refreshToken": refresh},
		Public: true,
	}
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	if err := s.tokens.Save(ctx, out.Token, out.RefreshToken); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	return nil
}

// HandleExpired clears the session after the HTTP client gave up on
// refreshing it.
func (s *Store) HandleExpired() {
	log.Printf("[Auth] Session expired")
	s.clearLocal(context.Background())
}

func (s *Store) clearLocal(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		log.Printf("[Auth] Failed to clear tokens: %v", err)
	}
	if s.Current().Authenticated {
		s.setSession(Session{})
	}
}

func (s *Store) fetchMe(ctx context.Context) (*User, error) {
	var out userPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/auth/me"}, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// ============================================
// Verification and password reset
// ============================================

// VerifyEmail submits an email verification token. When a user is logged in
// the session is refreshed so EmailVerified reflects the change.
func (s *Store) VerifyEmail(ctx context.Context, token string) result.Result[string] {
	if token == "" {
		return result.Fail[string]("verification token is required")
	}

	res, err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/verify-email",
		Body:   map[string]string{"token": token},
	}, nil)
	if err != nil {
		return result.Fail[string](apiclient.Message(err, msgVerifyFailed))
	}

	if cur := s.Current(); cur.Authenticated {
		if user, err := s.fetchMe(ctx); err == nil {
			s.updateIfCurrent(cur.UserID, func(sess *Session) { *sess = fromUser(user) })
		} else {
			log.Printf("[Auth] Failed to reload user after verification: %v", err)
		}
	}
	return result.OK(messageOr(res, msgVerified))
}

// ForgotPassword requests a password reset email.
func (s *Store) ForgotPassword(ctx context.Context, email string) result.Result[string] {
	if err := auth.ValidateEmail(email); err != nil {
		return result.Fail[string](err.Error())
	}
	return s.post(ctx, "/auth/forgot-password", map[string]string{"email": email}, msgForgotSent, msgForgotFailed)
}

// ResetPassword sets a new password using a reset token.
func (s *Store) ResetPassword(ctx context.Context, token, password string) result.Result[string] {
	if token == "" {
		return result.Fail[string]("reset token is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return result.Fail[string](err.Error())
	}
	return s.post(ctx, "/auth/reset-password", map[string]string{"token": token, "password": password}, msgResetDone, msgResetFailed)
}

// ResendVerification asks the backend to send the verification email again.
func (s *Store) ResendVerification(ctx context.Context, email string) result.Result[string] {
	if err := auth.ValidateEmail(email); err != nil {
		return result.Fail[string](err.Error())
	}
	return s.post(ctx, "/auth/resend-verification", map[string]string{"email": email}, msgResendSent, msgResendFailed)
}

func (s *Store) post(ctx context.Context, path string, body any, success, fallback string) result.Result[string] {
	res, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body, Public: true}, nil)
	if err != nil {
		return result.Fail[string](apiclient.Message(err, fallback))
	}
	return result.OK(messageOr(res, success))
}

// ============================================
// Profile
// ============================================

// UpdateProfile changes the user's name or phone.
func (s *Store) UpdateProfile(ctx context.Context, update ProfileUpdate) result.Result[Session] {
	cur := s.Current()
	if !cur.Authenticated {
		return result.Fail[Session](msgNotAuthenticated)
	}

	var out userPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: "/users/profile", Body: update}, &out); err != nil {
		return result.Fail[Session](apiclient.Message(err, msgProfileFailed))
	}

	sess, ok := s.updateIfCurrent(cur.UserID, func(sess *Session) { *sess = fromUser(out.User) })
	if !ok {
		return result.Fail[Session](msgNotAuthenticated)
	}
	return result.OK(sess)
}

// UploadAvatar replaces the user's profile picture.
func (s *Store) UploadAvatar(ctx context.Context, file apiclient.File) result.Result[Session] {
	cur := s.Current()
	if !cur.Authenticated {
		return result.Fail[Session](msgNotAuthenticated)
	}
	if len(file.Content) == 0 {
		return result.Fail[Session]("avatar file is empty")
	}

	body := apiclient.Multipart{Field: "avatar", Files: []apiclient.File{file}}
	var out userPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/users/avatar", Body: body}, &out); err != nil {
		return result.Fail[Session](apiclient.Message(err, msgAvatarFailed))
	}

	sess, ok := s.updateIfCurrent(cur.UserID, func(sess *Session) { *sess = fromUser(out.User) })
	if !ok {
		return result.Fail[Session](msgNotAuthenticated)
	}
	log.Printf("[Auth] Avatar updated: %s", cur.UserID)
	return result.OK(sess)
}

// UpdatePassword changes the password of the logged-in user.
func (s *Store) UpdatePassword(ctx context.Context, current, next string) result.Result[string] {
	if !s.IsAuthenticated() {
		return result.Fail[string](msgNotAuthenticated)
	}
	if current == "" {
		return result.Fail[string]("current password is required")
	}
	if err := auth.ValidatePassword(next); err != nil {
		return result.Fail[string](err.Error())
	}

	body := map[string]string{"currentPassword": current, "newPassword": next}
	res, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: "/users/password", Body: body}, nil)
	if err != nil {
		return result.Fail[string](apiclient.Message(err, msgPasswordFailed))
	}
	return result.OK(messageOr(res, msgPasswordUpdated))
}

// AddAddress saves a new address and returns the full address book.
func (s *Store) AddAddress(ctx context.Context, addr Address) result.Result[[]Address] {
	if err := addr.Validate(); err != nil {
		return result.Fail[[]Address](err.Error())
	}
	return s.addressCall(ctx, apiclient.Request{Method: http.MethodPost, Path: "/users/addresses", Body: addr}, msgAddressAddFailed)
}

// UpdateAddress replaces the address with the given ID.
func (s *Store) UpdateAddress(ctx context.Context, id string, addr Address) result.Result[[]Address] {
	if err := addr.Validate(); err != nil {
		return result.Fail[[]Address](err.Error())
	}
	path := "/users/addresses/" + apiclient.PathEscape(id)
	return s.addressCall(ctx, apiclient.Request{Method: http.MethodPut, Path: path, Body: addr}, msgAddressUpdFailed)
}

// DeleteAddress removes the address with the given ID.
func (s *Store) DeleteAddress(ctx context.Context, id string) result.Result[[]Address] {
	path := "/users/addresses/" + apiclient.PathEscape(id)
	return s.addressCall(ctx, apiclient.Request{Method: http.MethodDelete, Path: path}, msgAddressDelFailed)
}

func (s *Store) addressCall(ctx context.Context, req apiclient.Request, fallback string) result.Result[[]Address] {
	cur := s.Current()
	if !cur.Authenticated {
		return result.Fail[[]Address](msgNotAuthenticated)
	}

	var out addressesPayload
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		return result.Fail[[]Address](apiclient.Message(err, fallback))
	}

	sess, ok := s.updateIfCurrent(cur.UserID, func(sess *Session) { sess.Addresses = out.Addresses })
	if !ok {
		return result.Fail[[]Address](msgNotAuthenticated)
	}
	return result.OK(sess.Addresses)
}

func messageOr(res *apiclient.Response, fallback string) string {
	if res != nil && res.Message != "" {
		return res.Message
	}
	return fallback
}
