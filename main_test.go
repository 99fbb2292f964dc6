package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"veriHabitAPI/handlers"
)

// Handlers are never invoked here; route matching only needs the table.
func testRouter() *mux.Router {
	return newRouter(
		handlers.NewHabitHandler(nil),
		handlers.NewVerifyHandler(nil),
		handlers.NewSubmissionHandler(nil),
		handlers.NewCommunityHandler(nil, nil),
		handlers.NewWebhookHandler(nil),
	)
}

func TestRouterExposesDocumentedSurface(t *testing.T) {
	r := testRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/webhooks/clerk"},
		{http.MethodGet, "/api/v1/habits"},
		{http.MethodPost, "/api/v1/habits"},
		{http.MethodGet, "/api/v1/habits/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f"},
		{http.MethodPut, "/api/v1/habits/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f"},
		{http.MethodDelete, "/api/v1/habits/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f"},
		{http.MethodGet, "/api/v1/habits/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/submissions"},
		{http.MethodPost, "/api/v1/verify"},
		{http.MethodPost, "/api/v1/submissions/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/appeal"},
		{http.MethodGet, "/api/v1/community/feed"},
		{http.MethodPost, "/api/v1/community/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/like"},
		{http.MethodPost, "/api/v1/community/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/comment"},
		{http.MethodPost, "/api/v1/community/users/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/block"},
		{http.MethodDelete, "/api/v1/community/users/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/block"},
		{http.MethodPost, "/api/v1/admin/submissions/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/review"},
	}

	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			var match mux.RouteMatch
			assert.True(t, r.Match(req, &match), "route must be registered")
			assert.NoError(t, match.MatchErr)
		})
	}
}

func TestRouterRejectsRetiredPaths(t *testing.T) {
	r := testRouter()

	retired := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/submissions/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/like"},
		{http.MethodPost, "/api/v1/submissions/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/comments"},
		{http.MethodPost, "/api/v1/users/3f1d0c9e-9a1b-4f6e-8c2d-1a2b3c4d5e6f/block"},
	}

	for _, tc := range retired {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			var match mux.RouteMatch
			matched := r.Match(req, &match)
			if matched {
				assert.Error(t, match.MatchErr, "path must not resolve to a handler")
			}
		})
	}
}
