package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/models"
)

const (
	sessionCookie    = "session"
	oauthStateCookie = "oauth_state"
	sessionLifetime  = 7 * 24 * time.Hour
)

func (s *Server) newSessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Domain:   s.cfg.CookieDomain,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionUser resolves the session cookie to its user.
func (s *Server) sessionUser(r *http.Request) (*models.User, string, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || !models.ValidToken(cookie.Value) {
		return nil, "", Unauthorized("missing session")
	}

	user, err := s.store.UserBySession(r.Context(), cookie.Value)
	if errors.Is(err, db.ErrNotFound) {
		return nil, "", Unauthorized("invalid session")
	}
	if err != nil {
		return nil, "", err
	}
	return user, cookie.Value, nil
}

// handleUser returns the logged-in account.
func (s *Server) handleUser(r *http.Request) (*Response, error) {
	user, _, err := s.sessionUser(r)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	}), nil
}

// handleLogout invalidates the session and clears the cookie.
func (s *Server) handleLogout(r *http.Request) (*Response, error) {
	_, token, err := s.sessionUser(r)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteSession(r.Context(), token); err != nil {
		return nil, err
	}

	resp := JSON(http.StatusOK, map[string]any{"success": true})
	resp.Headers.Add("Set-Cookie", s.newSessionCookie("", -1).String())
	return resp, nil
}

// handleGithubLogin starts the OAuth flow.
func (s *Server) handleGithubLogin(r *http.Request) (*Response, error) {
	if s.oauth == nil {
		return nil, NotFound("login is not configured")
	}

	state := uuid.NewString()
	resp := &Response{Status: http.StatusFound}
	resp.Header("Location", s.oauth.AuthCodeURL(state))
	resp.Headers.Add("Set-Cookie", (&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}).String())
	return resp, nil
}

// githubUser is the subset of the GitHub user document the account row
// needs.
type githubUser struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	Email     string  `json:"email"`
	AvatarURL string  `json:"avatar_url"`
}

// handleGithubCallback finishes the OAuth flow: exchange the code, load
// the GitHub identity, upsert the account, open a session and bounce to
// the frontend.
func (s *Server) handleGithubCallback(r *http.Request) (*Response, error) {
	if s.oauth == nil {
		return nil, NotFound("login is not configured")
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		return nil, BadRequest("invalid oauth state")
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, BadRequest("missing oauth code")
	}

	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		return nil, BadRequest("oauth exchange failed")
	}

	identity, err := s.fetchGithubUser(r.Context(), token.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.UpsertUser(r.Context(),
		identity.ID, identity.Login, identity.Email, identity.AvatarURL, identity.Name)
	if err != nil {
		return nil, err
	}

	ip := netip.IPv6Loopback()
	if addr, ok := clientAddr(r); ok {
		ip = addr
	}
	session, err := s.store.CreateSession(r.Context(), user.ID, ip.Unmap().String(), r.UserAgent())
	if err != nil {
		return nil, err
	}

	resp := &Response{Status: http.StatusFound}
	resp.Header("Location", s.cfg.FrontendURL)
	resp.Headers.Add("Set-Cookie",
		s.newSessionCookie(session.Session, int(sessionLifetime.Seconds())).String())
	return resp, nil
}

// fetchGithubUser loads the user document, falling back to the primary
// address of /user/emails when the profile email is private.
func (s *Server) fetchGithubUser(ctx context.Context, accessToken string) (*githubUser, error) {
	var identity githubUser
	if err := githubGet(ctx, accessToken, "https://api.github.com/user", &identity); err != nil {
		return nil, err
	}

	if identity.Email == "" {
		var emails []struct {
			Email   string `json:"email"`
			Primary bool   `json:"primary"`
		}
		if err := githubGet(ctx, accessToken, "https://api.github.com/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary {
				identity.Email = e.Email
				break
			}
		}
	}
	if identity.Email == "" {
		return nil, BadRequest("github account has no usable email")
	}
	return &identity, nil
}

func githubGet(ctx context.Context, accessToken, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github request %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode github response %s: %w", url, err)
	}
	return nil
}
