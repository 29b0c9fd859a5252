package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/walker"
)

func TestComputePlan_Rules(t *testing.T) {
	inv := Inventory{
		Files: map[string]walker.Entry{
			"new":      {ID: "new", Collection: "docs", ContentHash: "h1", Path: "/r/new.txt"},
			"changed":  {ID: "changed", Collection: "docs", ContentHash: "h2"},
			"same":     {ID: "same", Collection: "docs", ContentHash: "h3"},
			"conflict": {ID: "conflict", Collection: "docs", ContentHash: "h4"},
		},
		Catalog: map[string]catalog.Summary{
			"changed":  {ID: "changed", Collection: "docs", ContentHash: "old", HasContent: true, Vectorized: true},
			"same":     {ID: "same", Collection: "docs", ContentHash: "h3", HasContent: true, Vectorized: true},
			"conflict": {ID: "conflict", Collection: "other", ContentHash: "h4", HasContent: true, Vectorized: true},
			"unvec":    {ID: "unvec", Collection: "api", HasContent: true},
			"lost":     {ID: "lost", Collection: "api", HasContent: true, Vectorized: true},
			"empty":    {ID: "empty", Collection: "api"},
			"stale":    {ID: "stale", Collection: "api"},
			"gone":     {ID: "gone", Collection: "docs", HasContent: true, Vectorized: true, SourcePath: "/r/gone.txt"},
		},
		Vectors: map[string][]string{
			"changed":  {"docs"},
			"same":     {"docs"},
			"conflict": {"other"},
			"stale":    {"api"},
			"vonly":    {"api"},
			"gone":     {"docs"},
		},
		Covered: map[string]bool{"docs": true},
	}

	plan := ComputePlan(inv)

	got := make(map[string]Discrepancy)
	for _, d := range plan.Discrepancies {
		got[d.ID] = d
	}

	want := map[string]struct {
		kind   Kind
		action Action
	}{
		"new":      {KindMissingMetadata, ActionIngest},
		"changed":  {KindContentChanged, ActionIngest},
		"conflict": {KindIntegrity, ActionNone},
		"unvec":    {KindNotVectorized, ActionReembed},
		"lost":     {KindMissingVector, ActionReembed},
		"stale":    {KindStaleVector, ActionReembed},
		"vonly":    {KindVectorOnly, ActionBackfill},
	}
	assert.Len(t, got, len(want))
	for id, w := range want {
		d, ok := got[id]
		if assert.True(t, ok, id) {
			assert.Equal(t, w.kind, d.Kind, id)
			assert.Equal(t, w.action, d.Action, id)
		}
	}
	assert.NotContains(t, got, "same")
	assert.NotContains(t, got, "empty")
	assert.NotContains(t, got, "gone")

	assert.Equal(t, "/r/new.txt", got["new"].Path)
	require.NotNil(t, got["new"].entry)
	assert.Equal(t, StatusUnresolved, got["conflict"].Status)
	assert.ElementsMatch(t, []string{"docs", "other"}, got["conflict"].Collections)

	require.Len(t, plan.Orphans, 1)
	assert.Equal(t, Orphan{ID: "gone", Collection: "docs", SourcePath: "/r/gone.txt", InMetadata: true, InVector: true}, plan.Orphans[0])
}

func TestComputePlan_OrphansOnlyForCoveredCollections(t *testing.T) {
	inv := Inventory{
		Catalog: map[string]catalog.Summary{
			"a": {ID: "a", Collection: "docs", HasContent: true, Vectorized: true},
			"b": {ID: "b", Collection: "api", HasContent: true, Vectorized: true},
		},
		Vectors: map[string][]string{"a": {"docs"}, "b": {"api"}},
		Covered: map[string]bool{"docs": true, "api": false},
	}

	plan := ComputePlan(inv)
	assert.Empty(t, plan.Discrepancies)
	require.Len(t, plan.Orphans, 1)
	assert.Equal(t, "a", plan.Orphans[0].ID)
}

func TestComputePlan_SortedAndEmpty(t *testing.T) {
	assert.Empty(t, ComputePlan(Inventory{}).Discrepancies)

	inv := Inventory{Vectors: map[string][]string{"c": {"x"}, "a": {"x"}, "b": {"x"}}}
	plan := ComputePlan(inv)
	require.Len(t, plan.Discrepancies, 3)
	assert.Equal(t, "a", plan.Discrepancies[0].ID)
	assert.Equal(t, "b", plan.Discrepancies[1].ID)
	assert.Equal(t, "c", plan.Discrepancies[2].ID)
}

func TestComputePlan_VectorInTwoCollections(t *testing.T) {
	inv := Inventory{
		Catalog: map[string]catalog.Summary{"a": {ID: "a", Collection: "x", HasContent: true, Vectorized: true}},
		Vectors: map[string][]string{"a": {"x", "y"}},
	}
	plan := ComputePlan(inv)
	require.Len(t, plan.Discrepancies, 1)
	assert.Equal(t, KindIntegrity, plan.Discrepancies[0].Kind)
}
