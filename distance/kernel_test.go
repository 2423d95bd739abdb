package distance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/lincode/distance"
	"github.com/grailbio/lincode/profile"
)

func TestPairwiseExactMatch(t *testing.T) {
	a := profile.Profile{1, 1, 1, 1}
	b := profile.Profile{1, 1, 1, 1}
	r := distance.Pairwise(a, b)
	require.Equal(t, 0, r.Diffs)
	assert.Equal(t, 0.0, r.Distance)
}

func TestPairwiseOneAlleleDifference(t *testing.T) {
	a := profile.Profile{1, 1, 1, 1}
	b := profile.Profile{1, 1, 1, 2}
	r := distance.Pairwise(a, b)
	require.Equal(t, 1, r.Diffs)
	assert.Equal(t, 25.0, r.Distance)
}

func TestPairwiseDistant(t *testing.T) {
	a := profile.Profile{1, 1, 1, 1}
	b := profile.Profile{2, 2, 2, 2}
	r := distance.Pairwise(a, b)
	assert.Equal(t, 4, r.Diffs)
	assert.Equal(t, 100.0, r.Distance)
}

func TestPairwiseMissingIsZeroDistanceAndDiffsZero(t *testing.T) {
	a := profile.Profile{1, 1, 1, 1}
	b := profile.Profile{1, 1, 1, profile.Missing}
	r := distance.Pairwise(a, b)
	assert.Equal(t, 0, r.Diffs)
	assert.Equal(t, 1, r.MissingInEither)
	assert.Equal(t, 0.0, r.Distance)
}

func TestPairwiseFullyMissingIsUndefinedTreatedAsMax(t *testing.T) {
	a := profile.Profile{profile.Missing, profile.Missing}
	b := profile.Profile{1, 2}
	r := distance.Pairwise(a, b)
	assert.Equal(t, 2, r.MissingInEither)
	assert.Equal(t, distance.Undefined, r.Distance)
	assert.Equal(t, 100.0, r.Distance)
}

func TestPairwiseSemicolonNotRelevantHere(t *testing.T) {
	// ParseAllele handles semicolon forms; Pairwise only sees normalized ints.
	v, err := profile.ParseAllele("5;9")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = profile.ParseAllele(";9")
	require.NoError(t, err)
	assert.Equal(t, profile.Missing, v)
}
