package business

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_IgnoresSetOrder(t *testing.T) {
	a := Entity{BusinessName: "Bar Roma", City: "Roma", Sources: []string{"maps", "directory"}, Issues: []string{"x", "y"}}
	b := Entity{BusinessName: "Bar Roma", City: "Roma", Sources: []string{"directory", "maps"}, Issues: []string{"y", "x"}}
	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.Len(t, ContentHash(a), 64)
}

func TestContentHash_IgnoresBookkeeping(t *testing.T) {
	a := Entity{ID: "1", BusinessName: "Bar Roma", City: "Roma", Version: 1, UpdatedAt: baseTime}
	b := Entity{ID: "2", BusinessName: "Bar Roma", City: "Roma", Version: 9, UpdatedAt: baseTime.Add(time.Hour), LastSeenAt: baseTime}
	assert.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_TracksHashedFields(t *testing.T) {
	base := Entity{BusinessName: "Bar Roma", City: "Roma", Score: 10}
	h := ContentHash(base)

	variants := []func(e *Entity){
		func(e *Entity) { e.BusinessName = "Bar Roma SNC" },
		func(e *Entity) { e.WebsiteURL = "https://barroma.it" },
		func(e *Entity) { e.Phone = "061234567" },
		func(e *Entity) { e.Address = "Via Roma 1" },
		func(e *Entity) { e.Score = 11 },
		func(e *Entity) { e.Sources = []string{"maps"} },
		func(e *Entity) { e.NeededRoles = []string{"seo"} },
		func(e *Entity) { e.Issues = []string{"slow"} },
		func(e *Entity) { e.Analysis = Analysis{"seo": 1} },
	}
	for i, mutate := range variants {
		e := base
		mutate(&e)
		assert.NotEqual(t, h, ContentHash(e), "variant %d", i)
	}
}

func TestContentHash_StableAcrossJSONRoundTrip(t *testing.T) {
	e := NewEntity(Observation{
		BusinessName: "Bar Roma",
		City:         "Roma",
		SourceID:     "maps",
		Analysis:     Analysis{"seo": map[string]any{"score": 70, "title": "ok"}, "issues": []any{"slow"}},
	}, baseTime)

	raw, err := json.Marshal(e.Analysis)
	require.NoError(t, err)
	var decoded Analysis
	require.NoError(t, json.Unmarshal(raw, &decoded))

	roundTripped := e
	roundTripped.Analysis = decoded
	assert.Equal(t, e.ContentHash, ContentHash(roundTripped))

	empty := e
	empty.Analysis = Analysis{}
	noAnalysis := e
	noAnalysis.Analysis = nil
	assert.Equal(t, ContentHash(noAnalysis), ContentHash(empty))
}
