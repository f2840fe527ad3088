package textsim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nyxmedia/grobber/internal/textsim"
)

func TestRatioIdenticalStrings(t *testing.T) {
	assert.Equal(t, 1.0, textsim.Ratio("Naruto", "Naruto"))
}

func TestRatioBothEmpty(t *testing.T) {
	assert.Equal(t, 1.0, textsim.Ratio("", ""))
}

func TestRatioCompletelyDifferent(t *testing.T) {
	assert.Equal(t, 0.0, textsim.Ratio("abc", "xyz"))
}

func TestRatioPartialOverlap(t *testing.T) {
	r := textsim.Ratio("Naruto Shippuden", "Naruto")
	assert.Greater(t, r, 0.5)
	assert.Less(t, r, 1.0)
}

func TestRatioIsSymmetric(t *testing.T) {
	assert.Equal(t, textsim.Ratio("One Piece", "One Peace"), textsim.Ratio("One Peace", "One Piece"))
}
