package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// User is a registered account, created through the GitHub login flow.
type User struct {
	ID       int64     `json:"id" db:"id"`
	GithubID int64     `json:"githubId" db:"github_id"`
	Login    string    `json:"login" db:"login"`
	Name     *string   `json:"name" db:"name"`
	Email    string    `json:"email" db:"email"`
	Avatar   string    `json:"avatar" db:"avatar"`
	Created  time.Time `json:"created" db:"created"`
}

// UserSession is one logged-in browser session. The session value in the
// cookie is the opaque 64-hex token.
type UserSession struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Session   string    `json:"-" db:"session"`
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"userAgent" db:"user_agent"`
	Created   time.Time `json:"created" db:"created"`
}

// NewToken derives an opaque credential from the creation instant and the
// owning principal: 64 lowercase hex characters of SHA-256. Used for both
// session tokens and organization API keys.
func NewToken(created time.Time, principalID int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d%d", created.UnixNano(), principalID))
	return hex.EncodeToString(sum[:])
}

// TokenLength is the length of every session token and API key.
const TokenLength = 64

// ValidToken reports whether raw has the shape of a credential issued by
// NewToken.
func ValidToken(raw string) bool {
	if len(raw) != TokenLength {
		return false
	}
	for _, c := range raw {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
