package api

import (
	"net/http"
	"strings"
)

// handleOpenAPI publishes the route table as an OpenAPI 3.1 document.
func (s *Server) handleOpenAPI(r *http.Request) (*Response, error) {
	paths := map[string]map[string]any{}
	for _, rt := range s.routes() {
		if rt.pattern == "/openapi.json" {
			continue
		}
		path := documentPath(rt.pattern)
		if paths[path] == nil {
			paths[path] = map[string]any{}
		}

		operation := map[string]any{
			"operationId": operationID(rt.method, path),
			"summary":     rt.summary,
			"responses": map[string]any{
				"default": map[string]any{"description": "Response"},
			},
		}
		if params := pathParameters(path); len(params) > 0 {
			operation["parameters"] = params
		}
		if rt.bucket != "" {
			operation["security"] = []map[string][]string{{}, {"api_key": {}}}
		}
		paths[path][strings.ToLower(rt.method)] = operation
	}

	return JSON(http.StatusOK, map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "MCJars API",
			"version": "2.0.0",
		},
		"servers": []map[string]any{
			{"url": s.cfg.AppURL},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"api_key": map[string]any{
					"type":        "apiKey",
					"in":          "header",
					"name":        "Authorization",
					"description": "Organization API key, 64 lowercase hex characters (^[a-f0-9]{64}$).",
				},
			},
		},
		"paths": paths,
	}), nil
}

// documentPath rewrites mux patterns into OpenAPI path templates.
func documentPath(pattern string) string {
	return strings.ReplaceAll(pattern, "...}", "}")
}

// operationID synthesizes a stable id from method and path: slashes become
// underscores and parameter braces are stripped.
func operationID(method, path string) string {
	id := strings.NewReplacer("/", "_", "{", "", "}", "").Replace(path)
	return strings.ToLower(method) + id
}

func pathParameters(path string) []map[string]any {
	var params []map[string]any
	for _, segment := range strings.Split(path, "/") {
		if !strings.HasPrefix(segment, "{") || !strings.HasSuffix(segment, "}") {
			continue
		}
		params = append(params, map[string]any{
			"name":     segment[1 : len(segment)-1],
			"in":       "path",
			"required": true,
			"schema":   map[string]any{"type": "string"},
		})
	}
	return params
}
