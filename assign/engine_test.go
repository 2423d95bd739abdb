package assign_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/lincode/assign"
	"github.com/grailbio/lincode/profile"
	"github.com/grailbio/lincode/scheme"
)

func newFixtureScheme(t *testing.T) *scheme.Config {
	t.Helper()
	dir, cleanup := testutil.TempDir(t, "", "")
	t.Cleanup(func() { testutil.NoCleanupOnError(t, cleanup, dir) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheme_1_loci.txt"), []byte("l1\nl2\nl3\nl4\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheme_1_thresholds.txt"), []byte("1;2\n"), 0644))
	body := "id\talleles\n" +
		"1\t1,1,1,1\n" +
		"2\t1,1,1,2\n" +
		"3\t1,1,2,2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheme_1_profiles.tsv"), []byte(body), 0644))

	cfg, err := scheme.Load(context.Background(), dir, 1)
	require.NoError(t, err)
	return cfg
}

func TestEngineRunAssignsThreeWayBranch(t *testing.T) {
	ctx := context.Background()
	cfg := newFixtureScheme(t)
	store, err := profile.Open(ctx, cfg)
	require.NoError(t, err)

	engine, err := assign.New(ctx, cfg, store, assign.Opts{})
	require.NoError(t, err)

	n, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	labeled, err := profile.LoadLabeled(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, labeled, 3)

	byID := map[string]profile.Code{}
	for _, l := range labeled {
		byID[l.ID] = l.Code
	}
	assert.Equal(t, "0_0", byID["1"].String())
	assert.Equal(t, "0_1", byID["2"].String())
	assert.Equal(t, "0_2", byID["3"].String())
}

func TestEngineRunIsNoOpOnceComplete(t *testing.T) {
	ctx := context.Background()
	cfg := newFixtureScheme(t)
	store, err := profile.Open(ctx, cfg)
	require.NoError(t, err)

	engine, err := assign.New(ctx, cfg, store, assign.Opts{})
	require.NoError(t, err)
	_, err = engine.Run(ctx)
	require.NoError(t, err)

	// Re-running against the same store (all profiles already labeled) must
	// assign nothing further.
	n, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A fresh Engine constructed over the same on-disk state reaches the
	// same conclusion after reloading the labeled set from disk.
	engine2, err := assign.New(ctx, cfg, store, assign.Opts{})
	require.NoError(t, err)
	n2, err := engine2.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n2)
}

func TestEngineRunRespectsMissingBudget(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheme_1_loci.txt"), []byte("l1\nl2\nl3\nl4\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheme_1_thresholds.txt"), []byte("1;2\n"), 0644))
	body := "id\talleles\n" +
		"1\t1,1,1,1\n" +
		"2\t1,1,1,0\n" + // one missing allele
		"3\t1,1,0,0\n" // two missing alleles
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scheme_1_profiles.tsv"), []byte(body), 0644))
	cfg, err := scheme.Load(ctx, dir, 1)
	require.NoError(t, err)

	store, err := profile.Open(ctx, cfg)
	require.NoError(t, err)

	engine, err := assign.New(ctx, cfg, store, assign.Opts{MaxMissing: 1})
	require.NoError(t, err)
	n, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEngineRunUsesMmapMatrixWhenRequested(t *testing.T) {
	ctx := context.Background()
	cfg := newFixtureScheme(t)
	store, err := profile.Open(ctx, cfg)
	require.NoError(t, err)

	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	engine, err := assign.New(ctx, cfg, store, assign.Opts{Mmap: true, TmpDir: tmpDir})
	require.NoError(t, err)
	n, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
