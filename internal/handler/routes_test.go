package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pkordes/transit-dispatch/api"
)

// TestRoutes_documentedInOpenAPI keeps openapi.yaml in step with the router:
// every mounted route must appear with the same method.
func TestRoutes_documentedInOpenAPI(t *testing.T) {
	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(api.OpenAPI, &doc))

	routes, ok := newHTTPHandler(t, deps{}).(chi.Routes)
	require.True(t, ok)

	count := 0
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/openapi.yaml" {
			return nil
		}
		count++
		ops, found := doc.Paths[route]
		if assert.True(t, found, "route %s missing from openapi.yaml", route) {
			assert.Contains(t, ops, strings.ToLower(method), "%s %s", method, route)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 14, count)
}
