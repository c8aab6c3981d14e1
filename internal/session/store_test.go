package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/mockapi"
	"github.com/example/ec-storefront/internal/storage"
)

type env struct {
	srv    *mockapi.Server
	url    string
	cache  *storage.MemoryStorage
	tokens *storage.TokenStore
	store  *Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := mockapi.New()
	_, err := srv.Seed()
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	e := &env{srv: srv, url: ts.URL + "/api", cache: storage.NewMemoryStorage()}
	e.tokens = storage.NewTokenStore(e.cache)
	e.store = newStoreOn(t, e.url, e.tokens)
	return e
}

// newStoreOn wires a store to its own client the way the application does.
func newStoreOn(t *testing.T, url string, tokens *storage.TokenStore) *Store {
	t.Helper()
	client, err := apiclient.New(apiclient.Config{BaseURL: url, Tokens: tokens})
	require.NoError(t, err)
	store := NewStore(client, tokens)
	client.SetRefresher(store)
	client.OnSessionExpired(store.HandleExpired)
	return store
}

func (e *env) login(t *testing.T) Session {
	t.Helper()
	res := e.store.Login(context.Background(), Credentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword})
	require.True(t, res.Success, res.Error)
	return res.Data
}

// ============================================
// Login
// ============================================

func TestLogin_Success(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sess := e.login(t)

	assert.True(t, sess.Authenticated)
	assert.Equal(t, mockapi.DemoEmail, sess.Email)
	assert.True(t, e.store.IsAuthenticated())
	assert.False(t, e.store.IsAdmin())
	assert.NotEmpty(t, e.tokens.AccessToken(ctx))
	assert.NotEmpty(t, e.tokens.RefreshToken(ctx))
}

func TestLogin_AdminRole(t *testing.T) {
	e := newEnv(t)
	res := e.store.Login(context.Background(), Credentials{Email: mockapi.AdminEmail, Password: mockapi.AdminPassword})
	require.True(t, res.Success)
	assert.True(t, e.store.IsAdmin())
}

func TestLogin_FailureLeavesNoToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.store.Login(ctx, Credentials{Email: mockapi.DemoEmail, Password: "wrong-password"})

	assert.False(t, res.Success)
	assert.Equal(t, "Invalid email or password", res.Error)
	assert.False(t, e.store.IsAuthenticated())
	assert.Empty(t, e.tokens.AccessToken(ctx))
	assert.Empty(t, e.tokens.RefreshToken(ctx))
}

func TestLogin_ServerErrorFallsBackToGenericMessage(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail("POST /auth/login", mockapi.Failure{Status: http.StatusInternalServerError})

	res := e.store.Login(context.Background(), Credentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword})

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.False(t, e.store.IsAuthenticated())
}

func TestLogin_MissingFieldsNeverReachServer(t *testing.T) {
	e := newEnv(t)

	res := e.store.Login(context.Background(), Credentials{Email: mockapi.DemoEmail})

	assert.False(t, res.Success)
	assert.Equal(t, 0, e.srv.Calls("POST /auth/login"))
}

// ============================================
// Registration and verification
// ============================================

func TestRegister_DoesNotAuthenticate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.store.Register(ctx, Registration{Name: "Ada", Email: "ada@luxe.shop", Password: "secret12"})

	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.Data)
	assert.False(t, e.store.IsAuthenticated())
	assert.Empty(t, e.tokens.AccessToken(ctx))
}

func TestRegister_ThenVerifyThenLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reg := Registration{Name: "Ada", Email: "ada@luxe.shop", Password: "secret12"}
	require.True(t, e.store.Register(ctx, reg).Success)

	res := e.store.Login(ctx, Credentials{Email: reg.Email, Password: reg.Password})
	assert.False(t, res.Success)
	assert.Equal(t, "Please verify your email before logging in", res.Error)

	verified := e.store.VerifyEmail(ctx, e.srv.VerificationToken(reg.Email))
	require.True(t, verified.Success, verified.Error)

	res = e.store.Login(ctx, Credentials{Email: reg.Email, Password: reg.Password})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Data.EmailVerified)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	res := e.store.Register(context.Background(), Registration{Name: "Dup", Email: mockapi.DemoEmail, Password: "secret12"})
	assert.False(t, res.Success)
	assert.Equal(t, "User already exists", res.Error)
}

func TestRegister_ShortPassword(t *testing.T) {
	e := newEnv(t)
	res := e.store.Register(context.Background(), Registration{Name: "Ada", Email: "ada@luxe.shop", Password: "123"})
	assert.False(t, res.Success)
	assert.Equal(t, 0, e.srv.Calls("POST /auth/register"))
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.True(t, e.store.ForgotPassword(ctx, mockapi.DemoEmail).Success)
	token := e.srv.ResetToken(mockapi.DemoEmail)
	require.NotEmpty(t, token)

	res := e.store.ResetPassword(ctx, token, "brand-new-pass")
	require.True(t, res.Success, res.Error)

	assert.False(t, e.store.Login(ctx, Credentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword}).Success)
	assert.True(t, e.store.Login(ctx, Credentials{Email: mockapi.DemoEmail, Password: "brand-new-pass"}).Success)
}

// ============================================
// Restore, refresh and logout
// ============================================

func TestRestoreSession_NoToken(t *testing.T) {
	e := newEnv(t)

	res := e.store.RestoreSession(context.Background())

	assert.True(t, res.Success)
	assert.False(t, res.Data.Authenticated)
	select {
	case <-e.store.Ready():
	default:
		t.Fatal("ready channel not closed")
	}
	assert.Equal(t, 0, e.srv.Calls("GET /auth/me"))
}

func TestRestoreSession_FromPersistedToken(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	restarted := newStoreOn(t, e.url, e.tokens)
	res := restarted.RestoreSession(context.Background())

	require.True(t, res.Success, res.Error)
	assert.True(t, restarted.IsAuthenticated())
	assert.Equal(t, mockapi.DemoEmail, restarted.Current().Email)
	assert.NoError(t, restarted.WaitReady(context.Background()))
}

func TestRestoreSession_RevokedTokenClearsSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)
	e.srv.RevokeSessions()

	restarted := newStoreOn(t, e.url, e.tokens)
	res := restarted.RestoreSession(ctx)

	assert.False(t, res.Success)
	assert.False(t, restarted.IsAuthenticated())
	assert.Empty(t, e.tokens.AccessToken(ctx))
	assert.Empty(t, e.tokens.RefreshToken(ctx))
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)
	before := e.tokens.AccessToken(ctx)
	e.srv.ExpireAccessTokens()

	res := e.store.UpdateProfile(ctx, ProfileUpdate{Name: "Renamed"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Renamed", res.Data.Name)
	assert.Equal(t, 1, e.srv.Calls("POST /auth/refresh"))
	assert.NotEqual(t, before, e.tokens.AccessToken(ctx))
	assert.True(t, e.store.IsAuthenticated())
}

func TestRefreshFailureEndsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)
	e.srv.RevokeSessions()

	res := e.store.UpdateProfile(ctx, ProfileUpdate{Name: "Renamed"})

	assert.False(t, res.Success)
	assert.Equal(t, apiclient.SessionExpiredMessage, res.Error)
	assert.False(t, e.store.IsAuthenticated())
	assert.Empty(t, e.tokens.AccessToken(ctx))
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	e := newEnv(t)
	assert.ErrorIs(t, e.store.Refresh(context.Background()), ErrNoRefreshToken)
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)
	e.srv.Fail("POST /auth/logout", mockapi.Failure{Status: http.StatusInternalServerError, Message: "boom"})

	e.store.Logout(ctx)

	assert.False(t, e.store.IsAuthenticated())
	assert.Empty(t, e.tokens.AccessToken(ctx))
	assert.Equal(t, 1, e.srv.Calls("POST /auth/logout"))
}

// ============================================
// Subscribers
// ============================================

func TestSubscribe_ReceivesTransitionsInOrder(t *testing.T) {
	e := newEnv(t)
	var mu sync.Mutex
	var seen []bool
	unsubscribe := e.store.Subscribe(func(s Session) {
		mu.Lock()
		seen = append(seen, s.Authenticated)
		mu.Unlock()
	})

	e.login(t)
	e.store.Logout(context.Background())
	unsubscribe()
	e.login(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

// ============================================
// Profile and addresses
// ============================================

func TestUpdateProfile_RequiresLogin(t *testing.T) {
	e := newEnv(t)
	res := e.store.UpdateProfile(context.Background(), ProfileUpdate{Name: "X"})
	assert.False(t, res.Success)
	assert.Equal(t, 0, e.srv.Calls("PUT /users/profile"))
}

func TestUploadAvatar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	file := apiclient.File{Name: "me.png", Content: []byte("png")}

	res := e.store.UploadAvatar(ctx, file)
	assert.False(t, res.Success)
	assert.Equal(t, 0, e.srv.Calls("POST /users/avatar"))

	e.login(t)
	empty := e.store.UploadAvatar(ctx, apiclient.File{Name: "me.png"})
	assert.False(t, empty.Success)
	assert.Equal(t, 0, e.srv.Calls("POST /users/avatar"))

	res = e.store.UploadAvatar(ctx, file)
	require.True(t, res.Success, res.Error)
	assert.Regexp(t, `^/uploads/avatars/.+\.png$`, res.Data.Avatar)
	assert.Equal(t, res.Data.Avatar, e.store.Current().Avatar)
	assert.Equal(t, mockapi.DemoEmail, e.store.Current().Email)
}

func TestUploadAvatar_ServerError(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.srv.Fail("POST /users/avatar", mockapi.Failure{Status: http.StatusInternalServerError})

	res := e.store.UploadAvatar(context.Background(), apiclient.File{Name: "me.png", Content: []byte("png")})

	assert.False(t, res.Success)
	assert.Empty(t, e.store.Current().Avatar)
	assert.True(t, e.store.IsAuthenticated())
}

func TestUpdatePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)

	bad := e.store.UpdatePassword(ctx, "not-current", "another-pass")
	assert.False(t, bad.Success)
	assert.Equal(t, "Current password is incorrect", bad.Error)

	ok := e.store.UpdatePassword(ctx, mockapi.DemoPassword, "another-pass")
	assert.True(t, ok.Success, ok.Error)
}

func TestAddresses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t)

	added := e.store.AddAddress(ctx, Address{Street: "1 Main St", City: "Springfield", ZipCode: "12345", Country: "US"})
	require.True(t, added.Success, added.Error)
	require.Len(t, added.Data, 1)
	assert.True(t, added.Data[0].IsDefault)
	assert.Len(t, e.store.Current().Addresses, 1)

	id := added.Data[0].ID
	updated := e.store.UpdateAddress(ctx, id, Address{Street: "2 Elm St", City: "Springfield", ZipCode: "12345", Country: "US", IsDefault: true})
	require.True(t, updated.Success, updated.Error)
	assert.Equal(t, "2 Elm St", e.store.Current().Addresses[0].Street)

	removed := e.store.DeleteAddress(ctx, id)
	require.True(t, removed.Success, removed.Error)
	assert.Empty(t, e.store.Current().Addresses)

	missing := e.store.DeleteAddress(ctx, id)
	assert.False(t, missing.Success)
	assert.Equal(t, "Address not found", missing.Error)
}

func TestAddAddress_InvalidNeverReachesServer(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	res := e.store.AddAddress(context.Background(), Address{Street: "1 Main St"})
	assert.False(t, res.Success)
	assert.Equal(t, 0, e.srv.Calls("POST /users/addresses"))
}
