package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/migrate"
	"github.com/target/mmk-jobqueue/internal/testutil"
)

func TestVersions_Sorted(t *testing.T) {
	versions, err := migrate.Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "0001_queue", versions[0])
	assert.IsIncreasing(t, versions)
}

func TestRun_Idempotent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.OpenTestDB(t)
	defer db.Close()
	ctx := context.Background()

	_, err := migrate.Run(ctx, db, nil)
	require.NoError(t, err)

	applied, err := migrate.Run(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, applied)

	pending, err := migrate.Pending(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
