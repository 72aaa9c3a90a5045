package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimatdata/disclosure-pipeline/internal/model"
)

func change(t *testing.T, r Result, field string) FieldChange {
	t.Helper()
	for _, ch := range r.Changes {
		if ch.Field == field {
			return ch
		}
	}
	t.Fatalf("no change for field %s in %+v", field, r.Changes)
	return FieldChange{}
}

func TestCompare_AddAgainstEmptySnapshot(t *testing.T) {
	proposed := model.Emissions{
		Scope1: model.Value(model.EmissionsEntry{Total: 1200, Unit: "tCO2e"}),
	}

	res, err := Compare("emissions", nil, proposed)
	require.NoError(t, err)

	require.Len(t, res.Changes, 1)
	assert.True(t, res.RequiresApproval)
	ch := change(t, res, "emissions.scope1")
	assert.Equal(t, OpAdd, ch.Op)
	assert.Nil(t, ch.Old)
}

func TestCompare_AbsentFieldStatesNoOpinion(t *testing.T) {
	existing := model.Emissions{
		Scope1: model.Value(model.EmissionsEntry{Total: 1200}),
		Scope2: model.Value(model.Scope2Entry{Unit: "tCO2e"}),
	}
	// Proposal only speaks about scope1; stored scope2 must survive.
	proposed := model.Emissions{
		Scope1: model.Value(model.EmissionsEntry{Total: 1200}),
	}

	res, err := Compare("emissions", existing, proposed)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, res.RequiresApproval)
}

func TestCompare_ExplicitNullClearsStoredValue(t *testing.T) {
	existing := model.Emissions{
		Scope1And2: model.Value(model.EmissionsEntry{Total: 4500, Unit: "tCO2e"}),
	}
	proposed := model.Emissions{
		Scope1:     model.Value(model.EmissionsEntry{Total: 1200, Unit: "tCO2e"}),
		Scope2:     model.Value(model.Scope2Entry{Unit: "tCO2e"}),
		Scope1And2: model.Null[model.EmissionsEntry](),
	}

	res, err := Compare("emissions", existing, proposed)
	require.NoError(t, err)

	cleared := change(t, res, "emissions.scope1And2")
	assert.Equal(t, OpClear, cleared.Op)
	assert.NotNil(t, cleared.Old)
	assert.Equal(t, OpAdd, change(t, res, "emissions.scope1").Op)
}

func TestCompare_NullAgainstNothingIsNoChange(t *testing.T) {
	proposed := model.Emissions{
		Scope1And2: model.Null[model.EmissionsEntry](),
	}

	res, err := Compare("emissions", nil, proposed)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestCompare_NormalizesCurrencyAndWhitespace(t *testing.T) {
	existing := model.Economy{
		Turnover: model.Value(model.Turnover{Value: 91000000, Currency: "SEK"}),
	}
	proposed := model.Economy{
		Turnover: model.Value(model.Turnover{Value: 91000000, Currency: " sek "}),
	}

	res, err := Compare("economy", existing, proposed)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestCanonical_MatchesComparisonForm(t *testing.T) {
	ec := model.Economy{
		Turnover: model.Value(model.Turnover{Value: 1000, Currency: " sek "}),
	}
	raw, err := Canonical(ec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"turnover":{"value":1000,"currency":"SEK"}}`, string(raw))
}

func TestCanonical_KeepsExplicitNull(t *testing.T) {
	em := model.Emissions{
		Scope1And2: model.Null[model.EmissionsEntry](),
	}
	raw, err := Canonical(em)
	require.NoError(t, err)
	assert.JSONEq(t, `{"scope1And2":null}`, string(raw))
}

func TestCompare_ValueChangeDetected(t *testing.T) {
	existing := model.Economy{
		Turnover: model.Value(model.Turnover{Value: 91000000, Currency: "SEK"}),
	}
	proposed := model.Economy{
		Turnover: model.Value(model.Turnover{Value: 95000000, Currency: "SEK"}),
	}

	res, err := Compare("economy", existing, proposed)
	require.NoError(t, err)

	ch := change(t, res, "economy.turnover")
	assert.Equal(t, OpChange, ch.Op)
}

func TestCompare_ListFragmentDiffsAsUnit(t *testing.T) {
	existing := []model.Goal{{Description: "net zero", Year: "2040"}}
	proposed := []model.Goal{{Description: "net zero", Year: "2035"}}

	res, err := Compare("goals", existing, proposed)
	require.NoError(t, err)

	require.Len(t, res.Changes, 1)
	assert.Equal(t, OpChange, res.Changes[0].Op)
	assert.Equal(t, "goals", res.Changes[0].Field)
}

func TestCompare_IdenticalListsAreEmpty(t *testing.T) {
	goals := []model.Goal{{Description: "net zero", Year: "2040"}}

	res, err := Compare("goals", goals, goals)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestCompare_IsIdempotent(t *testing.T) {
	existing := model.Emissions{
		Scope1: model.Value(model.EmissionsEntry{Total: 1200, Unit: "tCO2e"}),
	}

	res, err := Compare("emissions", existing, existing)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, res.RequiresApproval)
}

func TestRender(t *testing.T) {
	existing := model.Emissions{
		Scope1And2: model.Value(model.EmissionsEntry{Total: 4500}),
	}
	proposed := model.Emissions{
		Scope1:     model.Value(model.EmissionsEntry{Total: 1200}),
		Scope1And2: model.Null[model.EmissionsEntry](),
	}

	res, err := Compare("emissions", existing, proposed)
	require.NoError(t, err)

	out := res.Render()
	assert.Contains(t, out, "+ emissions.scope1")
	assert.Contains(t, out, "- emissions.scope1And2")

	empty := Result{FragmentPath: "economy"}
	assert.Equal(t, "economy: no changes", empty.Render())
}
