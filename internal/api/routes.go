package api

import (
	"net/http"

	"github.com/mcjars/www-sub000/internal/requestlog"
)

// Rate-limit buckets. Artifact downloads get the tighter window.
const (
	bucketRegular = requestlog.BucketRegular
	bucketFiles   = requestlog.BucketFiles
)

// route is one registered endpoint. Routes outside the API gate leave
// bucket empty; openapi.go renders the same table into the published
// document.
type route struct {
	method  string
	pattern string
	bucket  string
	summary string
	handler handlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/api/health", "", "Dependency health probes", s.handleHealth},

		{http.MethodGet, "/api/github", "", "Start the GitHub login flow", s.handleGithubLogin},
		{http.MethodGet, "/api/github/callback", "", "Finish the GitHub login flow", s.handleGithubCallback},
		{http.MethodGet, "/api/user", bucketRegular, "Current account", s.handleUser},
		{http.MethodPost, "/api/user/logout", bucketRegular, "End the session", s.handleLogout},

		{http.MethodGet, "/api/user/organizations", bucketRegular, "Organizations of the current account", s.handleUserOrganizations},
		{http.MethodGet, "/api/user/organizations/{organization}", bucketRegular, "One organization", s.handleUserOrganization},
		{http.MethodPatch, "/api/user/organizations/{organization}", bucketRegular, "Update an organization", s.handlePatchOrganization},
		{http.MethodGet, "/api/user/organizations/{organization}/subusers", bucketRegular, "Organization members", s.handleOrganizationSubusers},
		{http.MethodPost, "/api/user/organizations/{organization}/subusers", bucketRegular, "Invite a member", s.handleInviteSubuser},
		{http.MethodDelete, "/api/user/organizations/{organization}/subusers/{user}", bucketRegular, "Remove a member", s.handleDeleteSubuser},
		{http.MethodGet, "/api/user/organizations/{organization}/keys", bucketRegular, "Organization API keys", s.handleOrganizationKeys},
		{http.MethodPost, "/api/user/organizations/{organization}/keys", bucketRegular, "Create an API key", s.handleCreateOrganizationKey},
		{http.MethodDelete, "/api/user/organizations/{organization}/keys/{key}", bucketRegular, "Revoke an API key", s.handleDeleteOrganizationKey},

		{http.MethodGet, "/api/organization/v1", bucketRegular, "Organization of the presented API key", s.handleOrganizationV1},
		{http.MethodGet, "/api/organization/v1/stats", bucketRegular, "Usage of the presented API key's organization", s.handleOrganizationV1Stats},

		{http.MethodGet, "/api/v1/types", bucketRegular, "Server type catalog", s.handleV1Types},
		{http.MethodGet, "/api/v1/stats", bucketRegular, "Site-wide totals", s.handleV1Stats},
		{http.MethodGet, "/api/v1/build/{build}", bucketRegular, "Identify a build by id or hash", s.handleV1Build},
		{http.MethodGet, "/api/v1/builds/{type}", bucketRegular, "Versions of a type with latest builds", s.handleV1Builds},
		{http.MethodGet, "/api/v1/builds/{type}/{version}", bucketRegular, "Builds of a version", s.handleVersionBuilds},
		{http.MethodGet, "/api/v1/builds/{type}/{version}/{build}", bucketRegular, "One build of a version", s.handleVersionBuild},
		{http.MethodGet, "/api/v1/script/{build}/{format}", bucketRegular, "Install script for a build", s.handleV1Script},
		{http.MethodGet, "/api/v1/version/{version}", bucketRegular, "Version summary across types", s.handleV1Version},
		{http.MethodGet, "/api/v1/version/{version}/builds", bucketRegular, "All builds of a version (deprecated)", s.handleV1VersionBuilds},

		{http.MethodGet, "/api/v2/types", bucketRegular, "Server type catalog grouped by category", s.handleV2Types},
		{http.MethodGet, "/api/v2/configs", bucketRegular, "Known configuration files", s.handleV2Configs},
		{http.MethodPost, "/api/v2/config", bucketRegular, "Identify a configuration file", s.handleV2Config},
		{http.MethodPost, "/api/v2/build", bucketRegular, "Identify builds by id or hashes", s.handleV2Build},
		{http.MethodGet, "/api/v2/builds/{type}", bucketRegular, "Versions of a type", s.handleV2Builds},
		{http.MethodGet, "/api/v2/builds/{type}/{version}", bucketRegular, "Builds of a version", s.handleVersionBuilds},
		{http.MethodGet, "/api/v2/lookups/{group}", bucketRegular, "Lookup totals by type or version", s.handleLookups},
		{http.MethodGet, "/api/v2/lookups/{group}/history/{year}/{month}", bucketRegular, "Daily lookup history", s.handleLookupHistory},
		{http.MethodGet, "/api/v2/requests/{target}", bucketRegular, "Request totals for a type or version", s.handleRequests},
		{http.MethodGet, "/api/v2/stats/{type}", bucketRegular, "Stats for a type", s.handleStats},
		{http.MethodGet, "/api/v2/stats/{type}/{version}", bucketRegular, "Stats for a version", s.handleStats},
		{http.MethodGet, "/api/v2/stats/{type}/{version}/history/{year}/{month}", bucketRegular, "Daily stats history", s.handleStatsHistory},

		{http.MethodGet, "/files/{path...}", bucketFiles, "Download an artifact", s.handleFiles},
		{http.MethodHead, "/files/{path...}", bucketFiles, "Download headers for an artifact", s.handleFiles},
		{http.MethodGet, "/index/{path...}", bucketRegular, "List the artifact tree", s.handleIndex},

		{http.MethodGet, "/openapi.json", "", "This document", s.handleOpenAPI},
	}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	for _, rt := range s.routes() {
		handler := s.Handle(rt.handler)
		if rt.bucket != "" {
			handler = s.Gate(rt.bucket, rt.handler)
		}
		mux.Handle(rt.method+" "+rt.pattern, handler)
	}
}
