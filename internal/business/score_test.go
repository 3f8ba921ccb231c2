package business

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_Signals(t *testing.T) {
	candidate := Entity{
		ID:           "e1",
		BusinessName: "Pizzeria Da Mario",
		City:         "Roma",
		WebsiteURL:   "https://www.pizzeriamario.it",
		Phone:        "+39 06 1234567",
	}

	tests := []struct {
		name    string
		obs     Observation
		want    float64
		signals []Signal
	}{
		{
			name:    "all signals",
			obs:     Observation{BusinessName: "Pizzeria da Mario S.r.l.", City: "ROMA", WebsiteURL: "pizzeriamario.it/menu", Phone: "06 1234567"},
			want:    1.0,
			signals: []Signal{SignalName, SignalCity, SignalDomain, SignalPhone},
		},
		{
			name:    "name and city",
			obs:     Observation{BusinessName: "Pizzeria Da Mario", City: "Roma"},
			want:    0.6,
			signals: []Signal{SignalName, SignalCity},
		},
		{
			name:    "name and domain",
			obs:     Observation{BusinessName: "Pizzeria Da Mario", City: "Milano", WebsiteURL: "http://pizzeriamario.it"},
			want:    0.7,
			signals: []Signal{SignalName, SignalDomain},
		},
		{
			name:    "domain and phone only",
			obs:     Observation{BusinessName: "Da Mario Ristorante Pizzeria", City: "Milano", WebsiteURL: "pizzeriamario.it", Phone: "061234567"},
			want:    0.4,
			signals: []Signal{SignalDomain, SignalPhone},
		},
		{
			name: "missing fields earn nothing",
			obs:  Observation{BusinessName: "Trattoria Luigi", City: "Napoli"},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.obs, candidate)
			assert.Equal(t, tt.want, s.Score)
			assert.Equal(t, tt.signals, s.Signals)
		})
	}
}

func TestScore_NameRatioBoundary(t *testing.T) {
	// "abcde" vs "abcdx": ratio 0.8 exactly, earns the name weight.
	s := Score(Observation{BusinessName: "abcde", City: "x"}, Entity{BusinessName: "abcdx", City: "y"})
	assert.InDelta(t, 0.8, s.NameRatio, 1e-9)
	assert.Equal(t, []Signal{SignalName}, s.Signals)

	// "abcde" vs "abcxy": ratio 0.6, no partial credit.
	s = Score(Observation{BusinessName: "abcde", City: "x"}, Entity{BusinessName: "abcxy", City: "y"})
	assert.Equal(t, 0.0, s.Score)
}

func TestScore_NoRenormalization(t *testing.T) {
	// A thin record matching on everything it has still scores below a
	// complete one.
	thin := Score(Observation{BusinessName: "Bar Roma", City: "Roma"}, Entity{BusinessName: "Bar Roma", City: "Roma"})
	assert.Equal(t, 0.6, thin.Score)
}

func TestScore_UnicodeNames(t *testing.T) {
	s := Score(Observation{BusinessName: "Caffè Nero", City: "Forlì"}, Entity{BusinessName: "Caffe Nero", City: "forlì"})
	assert.Equal(t, []Signal{SignalName, SignalCity}, s.Signals)
}

func TestRank_StableDescending(t *testing.T) {
	obs := Observation{BusinessName: "Bar Roma", City: "Roma", WebsiteURL: "barroma.it"}
	candidates := []Entity{
		{ID: "a", BusinessName: "Bar Roma", City: "Milano"},
		{ID: "b", BusinessName: "Bar Roma", City: "Roma", WebsiteURL: "https://barroma.it"},
		{ID: "c", BusinessName: "Bar Roma", City: "Napoli"},
		{ID: "d", BusinessName: "Bar Roma", City: "Roma"},
	}
	ranked := Rank(obs, candidates)
	require.Len(t, ranked, 4)

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Entity.ID
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestDecide_ThresholdExclusive(t *testing.T) {
	at := Decide([]Scored{{Entity: Entity{ID: "a"}, Score: 0.7}}, DefaultThreshold)
	assert.False(t, at.Match)
	require.NotNil(t, at.Best)

	above := Decide([]Scored{{Entity: Entity{ID: "a"}, Score: 0.7001}}, DefaultThreshold)
	assert.True(t, above.Match)
	assert.Equal(t, "a", above.Best.Entity.ID)
}

func TestDecide_SummedWeightsHitThresholdExactly(t *testing.T) {
	// name (0.4) + domain (0.3) must compare equal to the threshold.
	ranked := Rank(
		Observation{BusinessName: "Bar Roma", City: "Milano", WebsiteURL: "barroma.it"},
		[]Entity{{ID: "e", BusinessName: "Bar Roma SNC", City: "Roma", WebsiteURL: "https://barroma.it"}},
	)
	require.Len(t, ranked, 1)
	assert.Equal(t, DefaultThreshold, ranked[0].Score)
	assert.False(t, Decide(ranked, DefaultThreshold).Match)
}

func TestDecide_Empty(t *testing.T) {
	d := Decide(nil, DefaultThreshold)
	assert.False(t, d.Match)
	assert.Nil(t, d.Best)
}

func TestDecide_AmbiguousPicksFirstSeen(t *testing.T) {
	ranked := []Scored{
		{Entity: Entity{ID: "first"}, Score: 0.9},
		{Entity: Entity{ID: "second"}, Score: 0.9},
		{Entity: Entity{ID: "third"}, Score: 0.4},
	}
	d := Decide(ranked, DefaultThreshold)
	assert.True(t, d.Match)
	assert.True(t, d.Ambiguous)
	assert.Equal(t, "first", d.Best.Entity.ID)
}
