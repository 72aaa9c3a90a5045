package resolve

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimatdata/disclosure-pipeline/internal/config"
	"github.com/klimatdata/disclosure-pipeline/internal/extract"
	"github.com/klimatdata/disclosure-pipeline/pkg/anthropic"
	"github.com/klimatdata/disclosure-pipeline/pkg/wikidata"
)

type fakeSearch struct {
	queries  []string
	hits     map[string][]wikidata.SearchHit
	entities map[string]wikidata.Entity
}

func (f *fakeSearch) Search(_ context.Context, name string) ([]wikidata.SearchHit, error) {
	f.queries = append(f.queries, name)
	return f.hits[name], nil
}

func (f *fakeSearch) GetEntities(_ context.Context, ids []string) ([]wikidata.Entity, error) {
	out := make([]wikidata.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixedLLM struct {
	reply string
	seen  []anthropic.MessageRequest
}

func (c *fixedLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.seen = append(c.seen, req)
	return &anthropic.MessageResponse{Text: c.reply}, nil
}

func newExtractor(reply string) (*extract.Extractor, *fixedLLM) {
	llm := &fixedLLM{reply: reply}
	return extract.New(llm, config.AnthropicConfig{
		Model:          "claude-sonnet-4-5-20250929",
		RequestsPerMin: 6000,
		RequestBurst:   100,
	}), llm
}

func emissionsEntity(id, label string) wikidata.Entity {
	return wikidata.Entity{
		ID:    id,
		Label: label,
		Claims: map[string]json.RawMessage{
			wikidata.CarbonFootprintProperty: []byte(`[{"rank":"normal"}]`),
		},
	}
}

func TestStripInsignificant(t *testing.T) {
	assert.Equal(t, "volvo cars", StripInsignificant("Volvo Cars AB"))
	assert.Equal(t, "telia group", StripInsignificant("Telia Group"))
	assert.Equal(t, "smith jones", StripInsignificant("Smith and Jones"))
}

func TestDropLastToken(t *testing.T) {
	assert.Equal(t, "telia", DropLastToken("telia group"))
	assert.Equal(t, "", DropLastToken("telia"))
	assert.Equal(t, "", DropLastToken(""))
}

func TestResolve_TeliaNarrowing(t *testing.T) {
	// "Telia Group" has no direct hits; the stopword pass changes nothing
	// but lowercase; dropping the last token finds the company.
	search := &fakeSearch{
		hits: map[string][]wikidata.SearchHit{
			"telia": {{ID: "Q719344", Label: "Telia Company"}},
		},
		entities: map[string]wikidata.Entity{
			"Q719344": {ID: "Q719344", Label: "Telia Company"},
		},
	}
	extractor, _ := newExtractor(`{}`)
	r := New(search, extractor, 10)

	id, err := r.Resolve(context.Background(), "Telia Group", nil)
	require.NoError(t, err)
	assert.Equal(t, "Q719344", id)
	assert.Equal(t, []string{"Telia Group", "telia group", "telia"}, search.queries)
}

func TestResolve_BoundedAttempts(t *testing.T) {
	search := &fakeSearch{hits: map[string][]wikidata.SearchHit{}}
	extractor, _ := newExtractor(`{}`)
	r := New(search, extractor, 10)

	_, err := r.Resolve(context.Background(), "Aurora Borealis Heavy Industries Conglomerate", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoEntityFound))
	assert.Len(t, search.queries, maxSearchAttempts)
}

func TestResolve_SingleCandidateSkipsLLM(t *testing.T) {
	search := &fakeSearch{
		hits: map[string][]wikidata.SearchHit{
			"Ericsson": {{ID: "Q163810"}},
		},
		entities: map[string]wikidata.Entity{
			"Q163810": {ID: "Q163810", Label: "Ericsson"},
		},
	}
	extractor, llm := newExtractor(`{}`)
	r := New(search, extractor, 10)

	id, err := r.Resolve(context.Background(), "Ericsson", nil)
	require.NoError(t, err)
	assert.Equal(t, "Q163810", id)
	assert.Empty(t, llm.seen)
}

func TestResolve_DisambiguationPicksCandidate(t *testing.T) {
	search := &fakeSearch{
		hits: map[string][]wikidata.SearchHit{
			"Polar": {{ID: "Q1"}, {ID: "Q2"}},
		},
		entities: map[string]wikidata.Entity{
			"Q1": {ID: "Q1", Label: "Polar Music"},
			"Q2": emissionsEntity("Q2", "Polar Bread"),
		},
	}
	extractor, llm := newExtractor(`{"wikidataId": "Q2"}`)
	r := New(search, extractor, 10)

	id, err := r.Resolve(context.Background(), "Polar", []string{"picked the record label last time"})
	require.NoError(t, err)
	assert.Equal(t, "Q2", id)

	// Retry context rides along as conversational context.
	require.Len(t, llm.seen, 1)
	last := llm.seen[0].Messages[len(llm.seen[0].Messages)-1]
	assert.Contains(t, last.Content, "picked the record label last time")
}

func TestResolve_NullReplyFails(t *testing.T) {
	search := &fakeSearch{
		hits: map[string][]wikidata.SearchHit{
			"Acme": {{ID: "Q1"}, {ID: "Q2"}},
		},
		entities: map[string]wikidata.Entity{
			"Q1": {ID: "Q1"}, "Q2": {ID: "Q2"},
		},
	}
	extractor, _ := newExtractor(`{"wikidataId": null}`)
	r := New(search, extractor, 10)

	_, err := r.Resolve(context.Background(), "Acme", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCouldNotParseIdentity))
}

func TestResolve_InventedIDFails(t *testing.T) {
	search := &fakeSearch{
		hits: map[string][]wikidata.SearchHit{
			"Acme": {{ID: "Q1"}, {ID: "Q2"}},
		},
		entities: map[string]wikidata.Entity{
			"Q1": {ID: "Q1"}, "Q2": {ID: "Q2"},
		},
	}
	extractor, _ := newExtractor(`{"wikidataId": "Q99999"}`)
	r := New(search, extractor, 10)

	_, err := r.Resolve(context.Background(), "Acme", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCouldNotParseIdentity))
}

func TestRankByEmissions_StablePartition(t *testing.T) {
	in := []wikidata.Entity{
		{ID: "Q1"},
		emissionsEntity("Q2", ""),
		{ID: "Q3"},
		emissionsEntity("Q4", ""),
	}
	ranked := RankByEmissions(in)
	ids := []string{ranked[0].ID, ranked[1].ID, ranked[2].ID, ranked[3].ID}
	assert.Equal(t, []string{"Q2", "Q4", "Q1", "Q3"}, ids)
	// Input untouched.
	assert.Equal(t, "Q1", in[0].ID)
}
