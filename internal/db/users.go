package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcjars/www-sub000/internal/models"
)

// UpsertUser creates or refreshes the account row for a GitHub identity
// and returns it.
func (d *Database) UpsertUser(ctx context.Context, githubID int64, login, email, avatar string, name *string) (*models.User, error) {
	var user models.User
	err := d.write.GetContext(ctx, &user, `
		INSERT INTO users (github_id, login, name, email, avatar, created)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (github_id) DO UPDATE
		SET login = EXCLUDED.login, name = EXCLUDED.name,
		    email = EXCLUDED.email, avatar = EXCLUDED.avatar
		RETURNING id, github_id, login, name, email, avatar, created`,
		githubID, login, name, email, avatar,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", login, err)
	}
	return &user, nil
}

// CreateSession issues a session token for the user, bound to the client
// address and agent.
func (d *Database) CreateSession(ctx context.Context, userID int64, ip, userAgent string) (*models.UserSession, error) {
	now := time.Now()
	session := &models.UserSession{
		UserID:    userID,
		Session:   models.NewToken(now, userID),
		IP:        ip,
		UserAgent: userAgent,
		Created:   now,
	}
	err := d.write.GetContext(ctx, &session.ID, `
		INSERT INTO user_sessions (user_id, session, ip, user_agent, created)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		session.UserID, session.Session, session.IP, session.UserAgent, session.Created,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// UserBySession resolves a session token to its user.
func (d *Database) UserBySession(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := d.read.GetContext(ctx, &user, `
		SELECT u.id, u.github_id, u.login, u.name, u.email, u.avatar, u.created
		FROM users u
		JOIN user_sessions s ON s.user_id = u.id
		WHERE s.session = $1`,
		token,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("user by session: %w", err)
	}
	return &user, nil
}

// DeleteSession invalidates one session token.
func (d *Database) DeleteSession(ctx context.Context, token string) error {
	if _, err := d.write.ExecContext(ctx, `DELETE FROM user_sessions WHERE session = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
