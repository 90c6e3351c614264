package data

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

//go:embed scripts/*.lua
var luaScripts embed.FS

// DefaultKeyPrefix namespaces every key the Redis store writes.
const DefaultKeyPrefix = "jobqueue"

func mustScript(name string) *redis.Script {
	src, err := luaScripts.ReadFile("scripts/" + name)
	if err != nil {
		panic(fmt.Sprintf("read embedded script %s: %v", name, err))
	}
	return redis.NewScript(string(src))
}

var (
	claimScript   = mustScript("claim.lua")
	promoteScript = mustScript("promote.lua")
	removeScript  = mustScript("remove.lua")
)

// RedisStore implements core.JobStore on Redis.
//
// Layout (all keys share one hash tag so scripts stay single-slot on a cluster):
//
//	{prefix}:job:<id>        JSON record, optional TTL
//	{prefix}:ready:<prio>    list per priority, RPUSH/LPOP
//	{prefix}:delayed         zset scored by due time (ms), member "<rank>|<id>"
//	{prefix}:processing      set of claimed ids
//	{prefix}:counters        hash of aggregate counters
//	{prefix}:finished:<st>   zset per terminal state, scored by completion time (ms)
//	{prefix}:fire:<key>      scheduler fire keys
type RedisStore struct {
	client redis.UniversalClient
	base   string

	// ready list keys in claim order (highest priority first) and by rank
	claimOrder []string
	byRank     []string
}

var _ core.JobStore = (*RedisStore)(nil)

// NewRedisStore creates a store using the given client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	s := &RedisStore{client: client, base: "{" + prefix + "}"}
	for _, p := range model.Priorities() {
		s.claimOrder = append(s.claimOrder, s.readyKey(p))
	}
	s.byRank = make([]string, len(s.claimOrder))
	for _, p := range model.Priorities() {
		s.byRank[p.Rank()] = s.readyKey(p)
	}
	return s
}

func (s *RedisStore) jobKey(id string) string { return s.base + ":job:" + id }
func (s *RedisStore) readyKey(p model.JobPriority) string { return s.base + ":ready:" + string(p) }
func (s *RedisStore) delayedKey() string { return s.base + ":delayed" }
func (s *RedisStore) processingKey() string { return s.base + ":processing" }
func (s *RedisStore) countersKey() string { return s.base + ":counters" }
func (s *RedisStore) finishedKey(state model.JobState) string {
	return s.base + ":finished:" + string(state)
}
func (s *RedisStore) fireKey(key string) string { return s.base + ":fire:" + key }
func delayedMember(ref model.JobRef) string { return strconv.Itoa(ref.Priority.Rank()) + "|" + ref.ID }

// SaveJob writes the job record as JSON. A positive ttl sets the key expiry.
func (s *RedisStore) SaveJob(ctx context.Context, job *model.QueuedJob, ttl time.Duration) error {
	if job == nil {
		return ErrNilJob
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if ttl < 0 {
		ttl = 0
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jobKey(job.ID), raw, ttl)
		if job.Status.State.Terminal() && job.Status.CompletedAt != nil {
			pipe.ZAdd(ctx, s.finishedKey(job.Status.State), redis.Z{
				Score:  float64(job.Status.CompletedAt.UnixMilli()),
				Member: job.ID,
			})
		}
		return nil
	})
	return apperrors.MapDBError("redis save job", err)
}

// GetJob loads the job record, or returns model.ErrJobNotFound.
func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.QueuedJob, error) {
	raw, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrJobNotFound
		}
		return nil, apperrors.MapDBError("redis get job", err)
	}
	var job model.QueuedJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, apperrors.Storage("decode job "+id, err)
	}
	return &job, nil
}

// PushReady appends the job ID to its priority's ready list.
func (s *RedisStore) PushReady(ctx context.Context, ref model.JobRef) error {
	if !ref.Priority.Valid() {
		return ErrUnknownPriority
	}
	return apperrors.MapDBError("redis push ready", s.client.RPush(ctx, s.readyKey(ref.Priority), ref.ID).Err())
}

// ScheduleDelayed adds the job ID to the delayed sorted set scored by dueAt.
func (s *RedisStore) ScheduleDelayed(ctx context.Context, ref model.JobRef, dueAt time.Time) error {
	if !ref.Priority.Valid() {
		return ErrUnknownPriority
	}
	err := s.client.ZAdd(ctx, s.delayedKey(), redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: delayedMember(ref),
	}).Err()
	return apperrors.MapDBError("redis schedule delayed", err)
}

// PromoteDue atomically moves up to limit due jobs from the delayed set to their ready lists.
func (s *RedisStore) PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	keys := append([]string{s.delayedKey()}, s.byRank...)
	ids, err := promoteScript.Run(ctx, s.client, keys, now.UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.MapDBError("redis promote delayed", err)
	}
	return ids, nil
}

// ClaimNext atomically moves the next ready job ID into the processing set.
func (s *RedisStore) ClaimNext(ctx context.Context) (string, error) {
	keys := append(append([]string(nil), s.claimOrder...), s.processingKey())
	id, err := claimScript.Run(ctx, s.client, keys).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrNoJobsAvailable
		}
		return "", apperrors.MapDBError("redis claim", err)
	}
	return id, nil
}

// ReleaseClaim removes id from the processing set and reports whether it was there.
func (s *RedisStore) ReleaseClaim(ctx context.Context, id string) (bool, error) {
	n, err := s.client.SRem(ctx, s.processingKey(), id).Result()
	if err != nil {
		return false, apperrors.MapDBError("redis release claim", err)
	}
	return n > 0, nil
}

// ListProcessing returns the members of the processing set.
func (s *RedisStore) ListProcessing(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.processingKey()).Result()
	if err != nil {
		return nil, apperrors.MapDBError("redis list processing", err)
	}
	return ids, nil
}

// RemoveJob removes the job ID from its ready list, the delayed set and the processing set.
func (s *RedisStore) RemoveJob(ctx context.Context, ref model.JobRef) (bool, error) {
	keys := append(append([]string(nil), s.byRank...), s.delayedKey(), s.processingKey())
	n, err := removeScript.Run(ctx, s.client, keys, ref.ID).Int64()
	if err != nil {
		return false, apperrors.MapDBError("redis remove job", err)
	}
	return n > 0, nil
}

// IncrementCounters applies every delta in one MULTI/EXEC pipeline.
func (s *RedisStore) IncrementCounters(ctx context.Context, deltas map[model.Counter]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range deltas {
			if v != 0 {
				pipe.HIncrBy(ctx, s.countersKey(), string(k), v)
			}
		}
		return nil
	})
	return apperrors.MapDBError("redis increment counters", err)
}

// Counters reads the counter hash.
func (s *RedisStore) Counters(ctx context.Context) (map[model.Counter]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.countersKey()).Result()
	if err != nil {
		return nil, apperrors.MapDBError("redis read counters", err)
	}
	out := make(map[model.Counter]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apperrors.Storage("parse counter "+k, err)
		}
		out[model.Counter(k)] = n
	}
	return out, nil
}

// PurgeFinished deletes up to limit jobs indexed as finished in state before cutoff.
func (s *RedisStore) PurgeFinished(
	ctx context.Context,
	state model.JobState,
	cutoff time.Time,
	limit int,
) (int64, error) {
	if !state.Terminal() {
		return 0, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	ids, err := s.client.ZRangeByScore(ctx, s.finishedKey(state), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, apperrors.MapDBError("redis list finished", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]any, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		keys[i] = s.jobKey(id)
	}
	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.finishedKey(state), members...)
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError("redis purge finished", err)
	}
	return del.Val(), nil
}

// AcquireFireKey sets key with SET NX and reports whether this caller won it.
func (s *RedisStore) AcquireFireKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	status, err := s.client.SetArgs(ctx, s.fireKey(key), 1, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, apperrors.MapDBError("redis acquire fire key", err)
	}
	return status == "OK", nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return apperrors.MapDBError("redis ping", s.client.Ping(ctx).Err())
}
