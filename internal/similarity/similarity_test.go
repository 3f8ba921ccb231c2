package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("", ""))
	assert.Equal(t, 3, Distance("", "abc"))
	assert.Equal(t, 3, Distance("kitten", "sitting"))
	assert.Equal(t, 1, Distance("bar roma", "bar rome"))
}

func TestDistance_CountsCodePoints(t *testing.T) {
	// "è" is two bytes in UTF-8 but a single substitution.
	assert.Equal(t, 1, Distance("caffe", "caffè"))
	assert.Equal(t, 1, Distance("東京", "京京"))
}

func TestRatio(t *testing.T) {
	assert.InDelta(t, 1.0, Ratio("", ""), 1e-9)
	assert.InDelta(t, 0.0, Ratio("abc", ""), 1e-9)
	assert.InDelta(t, 1.0, Ratio("pizzeria da mario", "pizzeria da mario"), 1e-9)
	assert.InDelta(t, 0.8, Ratio("caffè", "caffe"), 1e-9)
	assert.InDelta(t, 1-3.0/7.0, Ratio("kitten", "sitting"), 1e-9)
}

func TestRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"trattoria", "tratoria"},
		{"bar roma", "bar roma snc"},
		{"ristorante l'oca", "ristorante oca"},
	}
	for _, p := range pairs {
		assert.InDelta(t, Ratio(p[0], p[1]), Ratio(p[1], p[0]), 1e-9)
	}
}
