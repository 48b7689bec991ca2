package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mcjars/www-sub000/internal/models"
)

const organizationColumns = `
	o.id, o.owner_id, o.name, o.icon, o.public, o.verified,
	o.owner_pending, o.types, o.created`

// OrganizationByKey resolves an API key to its organization.
func (d *Database) OrganizationByKey(ctx context.Context, key string) (*models.Organization, error) {
	var org models.Organization
	err := d.read.GetContext(ctx, &org, `
		SELECT `+organizationColumns+`
		FROM organizations o
		JOIN organization_keys k ON k.organization_id = o.id
		WHERE k.key = $1`,
		key,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("organization by key: %w", err)
	}
	return &org, nil
}

// Organization returns one organization by id.
func (d *Database) Organization(ctx context.Context, id int64) (*models.Organization, error) {
	var org models.Organization
	err := d.read.GetContext(ctx, &org,
		`SELECT `+organizationColumns+` FROM organizations o WHERE o.id = $1`, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("organization %d: %w", id, err)
	}
	return &org, nil
}

// OrganizationsForUser lists organizations the user owns or belongs to as
// an accepted subuser.
func (d *Database) OrganizationsForUser(ctx context.Context, userID int64) ([]*models.Organization, error) {
	var orgs []*models.Organization
	err := d.read.SelectContext(ctx, &orgs, `
		SELECT `+organizationColumns+`
		FROM organizations o
		LEFT JOIN organization_subusers s
		       ON s.organization_id = o.id AND s.user_id = $1 AND NOT s.pending
		WHERE o.owner_id = $1 OR s.user_id IS NOT NULL
		ORDER BY o.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("organizations for user %d: %w", userID, err)
	}
	return orgs, nil
}

// OrganizationMember reports the caller's standing: owner, member or
// neither.
func (d *Database) OrganizationMember(ctx context.Context, orgID, userID int64) (owner, member bool, err error) {
	org, err := d.Organization(ctx, orgID)
	if err != nil {
		return false, false, err
	}
	if org.OwnerID == userID {
		return true, true, nil
	}

	var exists bool
	err = d.read.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM organization_subusers
			WHERE organization_id = $1 AND user_id = $2 AND NOT pending
		)`,
		orgID, userID,
	)
	if err != nil {
		return false, false, fmt.Errorf("organization member %d/%d: %w", orgID, userID, err)
	}
	return false, exists, nil
}

// UpdateOrganization persists the mutable fields: name, icon and the
// allowed type list.
func (d *Database) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := d.write.ExecContext(ctx, `
		UPDATE organizations SET name = $2, icon = $3, types = $4 WHERE id = $1`,
		org.ID, org.Name, org.Icon, org.Types,
	)
	if err != nil {
		return fmt.Errorf("update organization %d: %w", org.ID, err)
	}
	return nil
}

// OrganizationKeys lists the API keys of an organization.
func (d *Database) OrganizationKeys(ctx context.Context, orgID int64) ([]*models.OrganizationKey, error) {
	var keys []*models.OrganizationKey
	err := d.read.SelectContext(ctx, &keys, `
		SELECT id, organization_id, name, key, created
		FROM organization_keys
		WHERE organization_id = $1
		ORDER BY id ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("organization keys %d: %w", orgID, err)
	}
	return keys, nil
}

// ErrQuota marks inserts rejected by a bounded per-organization quota.
var ErrQuota = errors.New("db: quota exceeded")

// ErrExists marks inserts rejected by a uniqueness constraint.
var ErrExists = errors.New("db: already exists")

// CreateOrganizationKey issues a new API key, enforcing the per-org quota.
func (d *Database) CreateOrganizationKey(ctx context.Context, orgID int64, name string) (*models.OrganizationKey, error) {
	var count int
	err := d.read.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM organization_keys WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("count organization keys %d: %w", orgID, err)
	}
	if count >= models.MaxOrganizationKeys {
		return nil, fmt.Errorf("%w: %d keys", ErrQuota, count)
	}

	now := time.Now()
	key := &models.OrganizationKey{
		OrganizationID: orgID,
		Name:           name,
		Key:            models.NewToken(now, orgID),
		Created:        now,
	}
	err = d.write.GetContext(ctx, &key.ID, `
		INSERT INTO organization_keys (organization_id, name, key, created)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		key.OrganizationID, key.Name, key.Key, key.Created,
	)
	if err != nil {
		return nil, fmt.Errorf("create organization key: %w", err)
	}
	return key, nil
}

// DeleteOrganizationKey removes one API key.
func (d *Database) DeleteOrganizationKey(ctx context.Context, orgID, keyID int64) error {
	res, err := d.write.ExecContext(ctx,
		`DELETE FROM organization_keys WHERE organization_id = $1 AND id = $2`, orgID, keyID)
	if err != nil {
		return fmt.Errorf("delete organization key %d: %w", keyID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OrganizationSubusers lists the members of an organization with their
// user records.
func (d *Database) OrganizationSubusers(ctx context.Context, orgID int64) ([]*models.OrganizationSubuser, error) {
	type row struct {
		models.OrganizationSubuser
		UserRowID int64   `db:"user_row_id"`
		GithubID  int64   `db:"github_id"`
		Login     string  `db:"login"`
		UserName  *string `db:"user_name"`
		Email     string  `db:"email"`
		Avatar    string  `db:"avatar"`
	}

	var rows []row
	err := d.read.SelectContext(ctx, &rows, `
		SELECT s.organization_id, s.user_id, s.pending, s.created,
		       u.id AS user_row_id, u.github_id, u.login, u.name AS user_name,
		       u.email, u.avatar
		FROM organization_subusers s
		JOIN users u ON u.id = s.user_id
		WHERE s.organization_id = $1
		ORDER BY s.created ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("organization subusers %d: %w", orgID, err)
	}

	out := make([]*models.OrganizationSubuser, 0, len(rows))
	for i := range rows {
		sub := rows[i].OrganizationSubuser
		sub.User = &models.User{
			ID:       rows[i].UserRowID,
			GithubID: rows[i].GithubID,
			Login:    rows[i].Login,
			Name:     rows[i].UserName,
			Email:    rows[i].Email,
			Avatar:   rows[i].Avatar,
		}
		out = append(out, &sub)
	}
	return out, nil
}

// InviteSubuser adds login to the organization as a pending member,
// enforcing the quota and uniqueness.
func (d *Database) InviteSubuser(ctx context.Context, orgID int64, login string) (*models.OrganizationSubuser, error) {
	var user models.User
	err := d.read.GetContext(ctx, &user,
		`SELECT id, github_id, login, name, email, avatar, created FROM users WHERE login = $1`, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("invite subuser lookup %s: %w", login, err)
	}

	var count int
	err = d.read.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM organization_subusers WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("count subusers %d: %w", orgID, err)
	}
	if count >= models.MaxOrganizationSubusers {
		return nil, fmt.Errorf("%w: %d subusers", ErrQuota, count)
	}

	sub := &models.OrganizationSubuser{
		OrganizationID: orgID,
		UserID:         user.ID,
		Pending:        true,
		Created:        time.Now(),
		User:           &user,
	}
	_, err = d.write.ExecContext(ctx, `
		INSERT INTO organization_subusers (organization_id, user_id, pending, created)
		VALUES ($1, $2, $3, $4)`,
		sub.OrganizationID, sub.UserID, sub.Pending, sub.Created,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("%w: user %s", ErrExists, login)
		}
		return nil, fmt.Errorf("invite subuser %s: %w", login, err)
	}
	return sub, nil
}

// DeleteSubuser removes a member from the organization.
func (d *Database) DeleteSubuser(ctx context.Context, orgID, userID int64) error {
	res, err := d.write.ExecContext(ctx,
		`DELETE FROM organization_subusers WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID)
	if err != nil {
		return fmt.Errorf("delete subuser %d/%d: %w", orgID, userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
