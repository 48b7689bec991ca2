package models

import (
	"time"

	"github.com/lib/pq"
)

// Limits on per-organization resources; exceeding either is a 409.
const (
	MaxOrganizationKeys     = 15
	MaxOrganizationSubusers = 15
)

// Organization groups clients under one owner with higher rate limits and
// a custom type view.
type Organization struct {
	ID           int64          `json:"id" db:"id"`
	OwnerID      int64          `json:"ownerId" db:"owner_id"`
	Name         string         `json:"name" db:"name"`
	Icon         string         `json:"icon" db:"icon"`
	Public       bool           `json:"public" db:"public"`
	Verified     bool           `json:"verified" db:"verified"`
	OwnerPending bool           `json:"ownerPending" db:"owner_pending"`
	Types        pq.StringArray `json:"types" db:"types"`
	Created      time.Time      `json:"created" db:"created"`
}

// AllowsType reports whether t is in the organization's allowed list. An
// empty list allows every family.
func (o *Organization) AllowsType(t ServerType) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, allowed := range o.Types {
		if ServerType(allowed) == t {
			return true
		}
	}
	return false
}

// OrganizationKey is an API key issued by an organization. The key value
// itself is an opaque 64-hex token from NewToken.
type OrganizationKey struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organizationId" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Key            string    `json:"key" db:"key"`
	Created        time.Time `json:"created" db:"created"`
}

// OrganizationSubuser is a user granted access to an organization, pending
// until the invite is accepted.
type OrganizationSubuser struct {
	OrganizationID int64     `json:"organizationId" db:"organization_id"`
	UserID         int64     `json:"userId" db:"user_id"`
	Pending        bool      `json:"pending" db:"pending"`
	Created        time.Time `json:"created" db:"created"`

	User *User `json:"user,omitempty" db:"-"`
}

// OrganizationStats is the cached per-organization usage rollup.
type OrganizationStats struct {
	Requests   int64 `json:"requests"`
	UserAgents int64 `json:"userAgents"`
	Origins    int64 `json:"origins"`
}
