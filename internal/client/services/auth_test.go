package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	regEmail   string
	regPass    []byte
	regConfirm []byte
	regErr     error

	loginEmail string
	loginPass  []byte
	loginErr   error

	refreshErr error

	me    *client.Identity
	meErr error

	logoutCalled bool
	logoutErr    error

	pingErr error
}

func (f *fakeClient) Register(_ context.Context, email string, password, confirmation []byte) (string, error) {
	f.regEmail, f.regPass, f.regConfirm = email, password, confirmation
	return "u-1", f.regErr
}

func (f *fakeClient) Login(_ context.Context, email string, password []byte) (string, error) {
	f.loginEmail, f.loginPass = email, password
	return "u-1", f.loginErr
}

func (f *fakeClient) Refresh(context.Context) (string, error) { return "u-1", f.refreshErr }

func (f *fakeClient) Me(context.Context) (*client.Identity, error) { return f.me, f.meErr }

func (f *fakeClient) Logout(context.Context) (string, error) {
	f.logoutCalled = true
	return "u-1", f.logoutErr
}

func (f *fakeClient) Ping(context.Context) error { return f.pingErr }

func TestRegister_TrimsEmail(t *testing.T) {
	f := &fakeClient{}
	s := NewAuthService(f)

	require.NoError(t, s.Register(context.Background(), "  a@b.io ", []byte("p"), []byte("c")))
	assert.Equal(t, "a@b.io", f.regEmail)
	assert.Equal(t, "p", string(f.regPass))
	assert.Equal(t, "c", string(f.regConfirm))
	assert.Equal(t, "", s.CurrentUser())
}

func TestRegister_Error(t *testing.T) {
	f := &fakeClient{regErr: &client.APIError{StatusCode: 409, Message: "taken"}}
	s := NewAuthService(f)

	err := s.Register(context.Background(), "a@b.io", nil, nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
}

func TestLogin_SetsUserFromServer(t *testing.T) {
	f := &fakeClient{me: &client.Identity{Email: "a@b.io"}}
	s := NewAuthService(f)

	require.NoError(t, s.Login(context.Background(), "A@B.io", []byte("pw")))
	assert.Equal(t, "A@B.io", f.loginEmail)
	assert.Equal(t, "a@b.io", s.CurrentUser())
}

func TestLogin_MeFailureFallsBackToInput(t *testing.T) {
	f := &fakeClient{meErr: client.ErrUnavailable}
	s := NewAuthService(f)

	require.NoError(t, s.Login(context.Background(), " A@B.io", []byte("pw")))
	assert.Equal(t, "a@b.io", s.CurrentUser())
}

func TestLogin_Error(t *testing.T) {
	f := &fakeClient{loginErr: client.ErrUnauthorized}
	s := NewAuthService(f)

	err := s.Login(context.Background(), "a@b.io", []byte("pw"))
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, "", s.CurrentUser())
}

func TestRefresh_UnauthorizedClearsUser(t *testing.T) {
	f := &fakeClient{me: &client.Identity{Email: "a@b.io"}}
	s := NewAuthService(f)
	require.NoError(t, s.Login(context.Background(), "a@b.io", nil))

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, "a@b.io", s.CurrentUser())

	f.refreshErr = client.ErrUnavailable
	require.ErrorIs(t, s.Refresh(context.Background()), client.ErrUnavailable)
	assert.Equal(t, "a@b.io", s.CurrentUser())

	f.refreshErr = client.ErrUnauthorized
	require.ErrorIs(t, s.Refresh(context.Background()), client.ErrUnauthorized)
	assert.Equal(t, "", s.CurrentUser())
}

func TestMe(t *testing.T) {
	f := &fakeClient{me: &client.Identity{Email: "a@b.io", Roles: []string{"ADMIN"}}}
	s := NewAuthService(f)

	me, err := s.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, me.Roles)
	assert.Equal(t, "a@b.io", s.CurrentUser())

	f.meErr = client.ErrUnauthorized
	_, err = s.Me(context.Background())
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, "", s.CurrentUser())
}

func TestLogout(t *testing.T) {
	f := &fakeClient{me: &client.Identity{Email: "a@b.io"}}
	s := NewAuthService(f)
	require.NoError(t, s.Login(context.Background(), "a@b.io", nil))

	f.logoutErr = errors.New("boom")
	require.Error(t, s.Logout(context.Background()))
	assert.Equal(t, "a@b.io", s.CurrentUser())

	f.logoutErr = nil
	require.NoError(t, s.Logout(context.Background()))
	assert.True(t, f.logoutCalled)
	assert.Equal(t, "", s.CurrentUser())
}

func TestPing(t *testing.T) {
	f := &fakeClient{pingErr: client.ErrUnavailable}
	s := NewAuthService(f)
	require.ErrorIs(t, s.Ping(context.Background()), client.ErrUnavailable)
}
