package profile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/lincode/profile"
	"github.com/grailbio/lincode/scheme"
)

func writeScheme(t *testing.T, profilesBody string) *scheme.Config {
	t.Helper()
	dir, cleanup := testutil.TempDir(t, "", "")
	t.Cleanup(func() { testutil.NoCleanupOnError(t, cleanup, dir) })
	cfg := &scheme.Config{ID: 1, Dir: dir, Loci: []string{"l1", "l2", "l3", "l4"}}
	require.NoError(t, os.WriteFile(cfg.ProfilesPath(), []byte(profilesBody), 0644))
	return cfg
}

func TestIterateProfilesRangeAndMissingFilters(t *testing.T) {
	body := "id\talleles\n" +
		"1\t1,1,1,1\n" +
		"2\t1,1,1,0\n" +
		"3\t1,1,0,0\n" +
		"4\t1,0,0,0\n"
	cfg := writeScheme(t, body)
	store, err := profile.Open(context.Background(), cfg)
	require.NoError(t, err)

	all := store.IterateProfiles(nil, nil, 3)
	assert.Len(t, all, 4)

	min, max := int64(2), int64(3)
	ranged := store.IterateProfiles(&min, &max, 3)
	require.Len(t, ranged, 2)
	assert.Equal(t, "2", ranged[0].ID)
	assert.Equal(t, "3", ranged[1].ID)

	lowMissing := store.IterateProfiles(nil, nil, 0)
	require.Len(t, lowMissing, 1)
	assert.Equal(t, "1", lowMissing[0].ID)
}

func TestAppendLabeledAndLoadLabeledRoundTrip(t *testing.T) {
	cfg := writeScheme(t, "id\talleles\n1\t1,1,1,1\n")
	ctx := context.Background()

	out, err := profile.LoadLabeled(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, out)

	rec := profile.Labeled{ID: "1", Profile: profile.Profile{1, 1, 1, 1}, Code: profile.Code{0, 0, 0}}
	require.NoError(t, profile.AppendLabeled(ctx, cfg, rec))

	rec2 := profile.Labeled{ID: "2", Profile: profile.Profile{1, 1, 1, 2}, Code: profile.Code{0, 0, 1}}
	require.NoError(t, profile.AppendLabeled(ctx, cfg, rec2))

	loaded, err := profile.LoadLabeled(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, rec, loaded[0])
	assert.Equal(t, rec2, loaded[1])

	require.NoError(t, profile.VerifyHeaderChecksum(cfg))

	sumPath := cfg.LincodesPath() + ".sum"
	_, err = os.Stat(sumPath)
	require.NoError(t, err)
}

func TestVerifyHeaderChecksumToleratesMissingSidecar(t *testing.T) {
	cfg := writeScheme(t, "id\talleles\n1\t1,1,1,1\n")
	assert.NoError(t, profile.VerifyHeaderChecksum(cfg))
}

func TestAppendSkipsDuplicateIDs(t *testing.T) {
	cfg := writeScheme(t, "id\talleles\n1\t1,1,1,1\n")
	store, err := profile.Open(context.Background(), cfg)
	require.NoError(t, err)

	inputDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, inputDir)
	inputPath := filepath.Join(inputDir, "input.tsv")
	body := "id\talleles\n1\t1,1,1,1\n2\t1,1,1,2\n"
	require.NoError(t, os.WriteFile(inputPath, []byte(body), 0644))

	added, err := store.Append(context.Background(), inputPath)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	all := store.IterateProfiles(nil, nil, 10)
	assert.Len(t, all, 2)
}
