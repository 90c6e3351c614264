package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data/storetest"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/testutil"
)

func TestRedisStore_Conformance(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })

	storetest.Run(t, func(t *testing.T) core.JobStore {
		require.NoError(t, client.FlushDB(context.Background()).Err())
		return NewRedisStore(client, "jobqueue-test")
	})
}

func TestRedisStore_KeysShareHashTag(t *testing.T) {
	s := NewRedisStore(nil, "")
	assert.Equal(t, "{jobqueue}:job:abc", s.jobKey("abc"))
	assert.Equal(t, "{jobqueue}:ready:critical", s.claimOrder[0])
	assert.Equal(t, "{jobqueue}:ready:low", s.byRank[0])
	assert.Equal(t, "3|abc", delayedMember(model.JobRef{ID: "abc", Priority: model.PriorityCritical}))
}
