package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/models"
)

func testOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "secret",
		Endpoint:     github.Endpoint,
		RedirectURL:  "http://localhost:6969/api/github/callback",
	}
}

type sessionStore struct {
	stubStore
	userBySession func(ctx context.Context, token string) (*models.User, error)
	deleted       []string
}

func (s *sessionStore) UserBySession(ctx context.Context, token string) (*models.User, error) {
	return s.userBySession(ctx, token)
}

func (s *sessionStore) DeleteSession(ctx context.Context, token string) error {
	s.deleted = append(s.deleted, token)
	return nil
}

func TestHandleUserRequiresCookie(t *testing.T) {
	srv, _ := newTestServer(t, &sessionStore{})

	_, err := srv.handleUser(httptest.NewRequest(http.MethodGet, "/api/user", nil))
	var display *Error
	require.ErrorAs(t, err, &display)
	assert.Equal(t, http.StatusUnauthorized, display.Status)
}

func TestHandleUserRejectsMalformedToken(t *testing.T) {
	srv, _ := newTestServer(t, &sessionStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "short"})

	_, err := srv.handleUser(req)
	var display *Error
	require.ErrorAs(t, err, &display)
	assert.Equal(t, http.StatusUnauthorized, display.Status)
}

func TestHandleUserReturnsAccount(t *testing.T) {
	token := models.NewToken(time.Now(), 42)
	store := &sessionStore{
		userBySession: func(ctx context.Context, got string) (*models.User, error) {
			require.Equal(t, token, got)
			return &models.User{ID: 42, Login: "octocat"}, nil
		},
	}
	srv, _ := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})

	resp, err := srv.handleUser(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body), `"octocat"`)
}

func TestHandleUserExpiredSession(t *testing.T) {
	store := &sessionStore{
		userBySession: func(ctx context.Context, got string) (*models.User, error) {
			return nil, db.ErrNotFound
		},
	}
	srv, _ := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: strings.Repeat("a", models.TokenLength)})

	_, err := srv.handleUser(req)
	var display *Error
	require.ErrorAs(t, err, &display)
	assert.Equal(t, http.StatusUnauthorized, display.Status)
}

func TestHandleLogoutClearsCookie(t *testing.T) {
	token := models.NewToken(time.Now(), 7)
	store := &sessionStore{
		userBySession: func(ctx context.Context, got string) (*models.User, error) {
			return &models.User{ID: 7}, nil
		},
	}
	srv, _ := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/user/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})

	resp, err := srv.handleLogout(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []string{token}, store.deleted)

	setCookie := resp.Headers.Get("Set-Cookie")
	assert.Contains(t, setCookie, sessionCookie+"=")
	assert.Contains(t, setCookie, "Max-Age=0")
}

func TestGithubLoginDisabled(t *testing.T) {
	srv, _ := newTestServer(t, &sessionStore{})
	require.Nil(t, srv.oauth)

	_, err := srv.handleGithubLogin(httptest.NewRequest(http.MethodGet, "/api/github", nil))
	var display *Error
	require.ErrorAs(t, err, &display)
	assert.Equal(t, http.StatusNotFound, display.Status)
}

func TestGithubCallbackStateMismatch(t *testing.T) {
	srv, _ := newTestServer(t, &sessionStore{})
	srv.oauth = testOAuthConfig()

	req := httptest.NewRequest(http.MethodGet, "/api/github/callback?state=other&code=x", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "expected"})

	_, err := srv.handleGithubCallback(req)
	var display *Error
	require.ErrorAs(t, err, &display)
	assert.Equal(t, http.StatusBadRequest, display.Status)
}

func TestGithubLoginSetsStateCookie(t *testing.T) {
	srv, _ := newTestServer(t, &sessionStore{})
	srv.oauth = testOAuthConfig()

	resp, err := srv.handleGithubLogin(httptest.NewRequest(http.MethodGet, "/api/github", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Contains(t, resp.Headers.Get("Location"), "client_id=test-client")
	assert.Contains(t, resp.Headers.Get("Set-Cookie"), oauthStateCookie+"=")
}
