package profile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/lincode/profile"
)

func TestParseAlleleMissingForms(t *testing.T) {
	for _, tok := range []string{"", "-", "N", "0"} {
		v, err := profile.ParseAllele(tok)
		require.NoError(t, err, "token %q", tok)
		assert.Equal(t, profile.Missing, v, "token %q", tok)
	}
}

func TestParseAlleleSemicolonFallback(t *testing.T) {
	v, err := profile.ParseAllele("7;12;19")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = profile.ParseAllele(";12")
	require.NoError(t, err)
	assert.Equal(t, profile.Missing, v)
}

func TestParseAlleleNegativeIsMissing(t *testing.T) {
	v, err := profile.ParseAllele("-3")
	require.NoError(t, err)
	assert.Equal(t, profile.Missing, v)
}

func TestParseAlleleRejectsNonNumeric(t *testing.T) {
	_, err := profile.ParseAllele("abc")
	assert.Error(t, err)
}

func TestParseRowTabAndCommaDelimited(t *testing.T) {
	p, err := profile.ParseRow("1,2,3,4", 4)
	require.NoError(t, err)
	assert.Equal(t, profile.Profile{1, 2, 3, 4}, p)

	p, err = profile.ParseRow("1\t2\t3\t4", 4)
	require.NoError(t, err)
	assert.Equal(t, profile.Profile{1, 2, 3, 4}, p)
}

func TestParseRowWidthMismatch(t *testing.T) {
	_, err := profile.ParseRow("1,2,3", 4)
	require.Error(t, err)
	we, ok := err.(*profile.WidthError)
	require.True(t, ok, "expected *WidthError, got %T", err)
	assert.Equal(t, 3, we.Got)
	assert.Equal(t, 4, we.Want)
}

func TestCodeStringAndParseCodeRoundTrip(t *testing.T) {
	c := profile.Code{0, 1, 2}
	assert.Equal(t, "0_1_2", c.String())

	parsed, err := profile.ParseCode("0_1_2")
	require.NoError(t, err)
	assert.True(t, c.Equal(parsed))
}

func TestCodeHasPrefix(t *testing.T) {
	c := profile.Code{0, 1, 2}
	assert.True(t, c.HasPrefix([]int{0, 1}))
	assert.False(t, c.HasPrefix([]int{0, 2}))
	assert.False(t, c.HasPrefix([]int{0, 1, 2, 3}))
}

func TestProfileCountMissingAndCSV(t *testing.T) {
	p := profile.Profile{1, profile.Missing, 3, profile.Missing}
	assert.Equal(t, 2, p.CountMissing())
	assert.Equal(t, "1,0,3,0", p.CSV())
}
