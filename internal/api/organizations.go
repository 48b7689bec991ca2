package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/httputil"
	"github.com/mcjars/www-sub000/internal/models"
)

// decodeBody parses a bounded JSON request body into dest.
func decodeBody(r *http.Request, dest any) error {
	raw, err := httputil.ReadLimitedBody(r.Body, httputil.DefaultMaxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return TooLarge("payload too large")
		}
		return BadRequest("unreadable body")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return BadRequest("invalid json body")
	}
	return nil
}

// orgAccess loads the organization from the {organization} path segment and
// checks the session user against it. When requireOwner is set, membership
// alone yields a 403.
func (s *Server) orgAccess(r *http.Request, requireOwner bool) (*models.Organization, *models.User, error) {
	user, _, err := s.sessionUser(r)
	if err != nil {
		return nil, nil, err
	}

	id, err := strconv.ParseInt(r.PathValue("organization"), 10, 64)
	if err != nil {
		return nil, nil, BadRequest("invalid organization id %q", r.PathValue("organization"))
	}

	org, err := s.store.Organization(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, NotFound("organization not found")
	}
	if err != nil {
		return nil, nil, err
	}

	owner, member, err := s.store.OrganizationMember(r.Context(), org.ID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if !owner && !member {
		return nil, nil, NotFound("organization not found")
	}
	if requireOwner && !owner {
		return nil, nil, Forbidden("only the organization owner may do that")
	}
	return org, user, nil
}

// invalidateOrganization drops every cached view of the organization,
// including the key lookups that authenticate its API traffic.
func (s *Server) invalidateOrganization(r *http.Request, org *models.Organization) {
	if err := s.cache.DeletePrefix(r.Context(), fmt.Sprintf("organization::%d", org.ID)); err != nil {
		s.logger.Warn("organization cache invalidation failed", "organization", org.ID, "error", err)
	}
	keys, err := s.store.OrganizationKeys(r.Context(), org.ID)
	if err != nil {
		s.logger.Warn("organization key listing failed", "organization", org.ID, "error", err)
		return
	}
	for _, key := range keys {
		if err := s.cache.Delete(r.Context(), "organization::key::"+key.Key); err != nil {
			s.logger.Warn("organization key cache invalidation failed", "organization", org.ID, "error", err)
		}
	}
}

// handleUserOrganizations lists organizations the session user owns or
// belongs to.
func (s *Server) handleUserOrganizations(r *http.Request) (*Response, error) {
	user, _, err := s.sessionUser(r)
	if err != nil {
		return nil, err
	}

	orgs, err := s.store.OrganizationsForUser(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success":       true,
		"organizations": orgs,
	}), nil
}

// handleUserOrganization returns one organization of the session user.
func (s *Server) handleUserOrganization(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, false)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success":      true,
		"organization": org,
	}), nil
}

type organizationPatch struct {
	Name   *string  `json:"name"`
	Icon   *string  `json:"icon"`
	Types  []string `json:"types"`
	Public *bool    `json:"public"`
}

// handlePatchOrganization updates mutable organization fields. Owner only.
func (s *Server) handlePatchOrganization(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, true)
	if err != nil {
		return nil, err
	}

	var patch organizationPatch
	if err := decodeBody(r, &patch); err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" || len(name) > 255 {
			return nil, BadRequest("organization name must be 1-255 characters")
		}
		org.Name = name
	}
	if patch.Icon != nil {
		org.Icon = *patch.Icon
	}
	if patch.Public != nil {
		org.Public = *patch.Public
	}
	if patch.Types != nil {
		types := make([]string, 0, len(patch.Types))
		for _, raw := range patch.Types {
			t, ok := models.ParseType(raw)
			if !ok {
				return nil, BadRequest("unknown type %q", raw)
			}
			types = append(types, string(t))
		}
		org.Types = types
	}

	if err := s.store.UpdateOrganization(r.Context(), org); err != nil {
		return nil, err
	}
	s.invalidateOrganization(r, org)

	return JSON(http.StatusOK, map[string]any{
		"success":      true,
		"organization": org,
	}), nil
}

// handleOrganizationSubusers lists member accounts.
func (s *Server) handleOrganizationSubusers(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, false)
	if err != nil {
		return nil, err
	}

	subusers, err := s.store.OrganizationSubusers(r.Context(), org.ID)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"users":   subusers,
	}), nil
}

// handleInviteSubuser adds a member by GitHub login. Owner only.
func (s *Server) handleInviteSubuser(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Login string `json:"login"`
	}
	if err := decodeBody(r, &payload); err != nil {
		return nil, err
	}
	payload.Login = strings.TrimSpace(payload.Login)
	if payload.Login == "" {
		return nil, BadRequest("login is required")
	}

	subuser, err := s.store.InviteSubuser(r.Context(), org.ID, payload.Login)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, NotFound("user %q not found", payload.Login)
	case errors.Is(err, db.ErrQuota):
		return nil, Conflict("organization already has %d members", models.MaxOrganizationSubusers)
	case errors.Is(err, db.ErrExists):
		return nil, Conflict("user %q is already a member", payload.Login)
	case err != nil:
		return nil, err
	}
	s.invalidateOrganization(r, org)

	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    subuser,
	}), nil
}

// handleDeleteSubuser removes a member. Owner only.
func (s *Server) handleDeleteSubuser(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, true)
	if err != nil {
		return nil, err
	}

	userID, err := strconv.ParseInt(r.PathValue("user"), 10, 64)
	if err != nil {
		return nil, BadRequest("invalid user id %q", r.PathValue("user"))
	}

	if err := s.store.DeleteSubuser(r.Context(), org.ID, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, NotFound("member not found")
		}
		return nil, err
	}
	s.invalidateOrganization(r, org)

	return JSON(http.StatusOK, map[string]any{"success": true}), nil
}

// handleOrganizationKeys lists the organization's API keys.
func (s *Server) handleOrganizationKeys(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, false)
	if err != nil {
		return nil, err
	}

	keys, err := s.store.OrganizationKeys(r.Context(), org.ID)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"keys":    keys,
	}), nil
}

// handleCreateOrganizationKey mints a new API key. Owner only.
func (s *Server) handleCreateOrganizationKey(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &payload); err != nil {
		return nil, err
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" || len(payload.Name) > 255 {
		return nil, BadRequest("key name must be 1-255 characters")
	}

	key, err := s.store.CreateOrganizationKey(r.Context(), org.ID, payload.Name)
	if errors.Is(err, db.ErrQuota) {
		return nil, Conflict("organization already has %d keys", models.MaxOrganizationKeys)
	}
	if err != nil {
		return nil, err
	}
	s.invalidateOrganization(r, org)

	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"key":     key,
	}), nil
}

// handleDeleteOrganizationKey revokes an API key. Owner only.
func (s *Server) handleDeleteOrganizationKey(r *http.Request) (*Response, error) {
	org, _, err := s.orgAccess(r, true)
	if err != nil {
		return nil, err
	}

	keyID, err := strconv.ParseInt(r.PathValue("key"), 10, 64)
	if err != nil {
		return nil, BadRequest("invalid key id %q", r.PathValue("key"))
	}

	// Load the key before deleting so the credential cache entry can be
	// dropped too.
	keys, err := s.store.OrganizationKeys(r.Context(), org.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteOrganizationKey(r.Context(), org.ID, keyID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, NotFound("key not found")
		}
		return nil, err
	}
	for _, key := range keys {
		if key.ID == keyID {
			if err := s.cache.Delete(r.Context(), "organization::key::"+key.Key); err != nil {
				s.logger.Warn("key cache invalidation failed", "organization", org.ID, "error", err)
			}
		}
	}
	s.invalidateOrganization(r, org)

	return JSON(http.StatusOK, map[string]any{"success": true}), nil
}

// handleOrganizationV1 returns the organization authenticated by the
// request's API key.
func (s *Server) handleOrganizationV1(r *http.Request) (*Response, error) {
	org := RequestOrganization(r)
	if org == nil {
		return nil, Unauthorized("organization api key required")
	}
	return JSON(http.StatusOK, map[string]any{
		"success":      true,
		"organization": org,
	}), nil
}

// handleOrganizationV1Stats returns usage aggregates for the key's
// organization.
func (s *Server) handleOrganizationV1Stats(r *http.Request) (*Response, error) {
	org := RequestOrganization(r)
	if org == nil {
		return nil, Unauthorized("organization api key required")
	}

	stats, err := cache.Cached(r.Context(), s.cache,
		fmt.Sprintf("organization::%d::stats", org.ID), ttlPersonal,
		func(ctx context.Context) (*models.OrganizationStats, error) {
			return s.analytics.OrganizationStats(ctx, org.ID)
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	}), nil
}
