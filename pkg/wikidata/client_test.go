package wikidata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wbsearchentities", r.URL.Query().Get("action"))
		assert.Equal(t, "Telia", r.URL.Query().Get("search"))
		json.NewEncoder(w).Encode(map[string]any{
			"search": []map[string]string{
				{"id": "Q719344", "label": "Telia Company", "description": "Swedish telecom operator"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	hits, err := c.Search(context.Background(), "Telia")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Q719344", hits[0].ID)
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"search": []any{}})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	hits, err := c.Search(context.Background(), "Nonexistent Co")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetEntities_PreservesRequestOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wbgetentities", r.URL.Query().Get("action"))
		json.NewEncoder(w).Encode(map[string]any{
			"entities": map[string]any{
				"Q2": map[string]any{
					"id":     "Q2",
					"labels": map[string]any{"en": map[string]string{"value": "Beta"}},
					"claims": map[string]any{"P5991": []any{map[string]any{"id": "x"}}},
				},
				"Q1": map[string]any{
					"id":     "Q1",
					"labels": map[string]any{"en": map[string]string{"value": "Alpha"}},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	entities, err := c.GetEntities(context.Background(), []string{"Q1", "Q2"})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Q1", entities[0].ID)
	assert.Equal(t, "Q2", entities[1].ID)
	assert.False(t, entities[0].HasClaim(CarbonFootprintProperty))
	assert.True(t, entities[1].HasClaim(CarbonFootprintProperty))
}

func TestGetEntities_EmptyIDs(t *testing.T) {
	c := NewClient()
	entities, err := c.GetEntities(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, entities)
}

func TestWithoutClaims(t *testing.T) {
	e := Entity{ID: "Q1", Claims: map[string]json.RawMessage{"P5991": []byte(`[]`)}}
	stripped := e.WithoutClaims()
	assert.Nil(t, stripped.Claims)
	assert.NotNil(t, e.Claims)
}

func TestHasClaim_EmptyArray(t *testing.T) {
	e := Entity{Claims: map[string]json.RawMessage{"P5991": []byte(`[]`)}}
	assert.False(t, e.HasClaim("P5991"))
}
