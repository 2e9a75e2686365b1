package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces review state documents.
const DefaultRedisKeyPrefix = "pulljoy:state:"

// Hash fields of a review state document.
const (
	fieldRepo      = "repo"
	fieldPRNum     = "pr_num"
	fieldStateName = "state_name"
	fieldReviewID  = "review_id"
	fieldCommitSHA = "commit_sha"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// RedisStore keeps each review state as a hash document. Document keys are
// the key prefix followed by the hex MD5 of "<repo>\n<number>".
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string

	now func() time.Time
}

// NewRedisStore returns a store over rdb. An empty prefix selects
// DefaultRedisKeyPrefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

// DialRedis connects to addr and checks the connection with a ping.
func DialRedis(ctx context.Context, addr, password string,
	dbNum int) (*redis.Client, error) {

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr,
			err)
	}

	return rdb, nil
}

// DocumentKey returns the key the state of repo#prNum is stored under.
func (r *RedisStore) DocumentKey(repo string, prNum int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s\n%d", repo, prNum)))
	return r.prefix + hex.EncodeToString(sum[:])
}

// Load implements StateStore.
func (r *RedisStore) Load(ctx context.Context, repo string,
	prNum int64) (fn.Option[ReviewState], error) {

	fields, err := r.rdb.HGetAll(ctx, r.DocumentKey(repo, prNum)).Result()
	if err != nil {
		return fn.None[ReviewState](), fmt.Errorf("failed to load "+
			"review state for %s/%d: %w", repo, prNum, err)
	}
	if len(fields) == 0 {
		return fn.None[ReviewState](), nil
	}

	state, err := reviewStateFromHash(fields)
	if err != nil {
		return fn.None[ReviewState](), err
	}

	return fn.Some(state), nil
}

// Save implements StateStore. Optional fields that are absent are removed
// from the document, and created_at is only written on first save.
func (r *RedisStore) Save(ctx context.Context, repo string, prNum int64,
	state ReviewState) error {

	if err := state.Validate(); err != nil {
		return err
	}

	key := r.DocumentKey(repo, prNum)
	now := strconv.FormatInt(r.now().Unix(), 10)

	values := map[string]any{
		fieldRepo:      repo,
		fieldPRNum:     strconv.FormatInt(prNum, 10),
		fieldStateName: string(state.Name),
		fieldUpdatedAt: now,
	}
	state.ReviewID.WhenSome(func(id string) {
		values[fieldReviewID] = id
	})
	state.CommitSHA.WhenSome(func(sha string) {
		values[fieldCommitSHA] = sha
	})

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, key, fieldReviewID, fieldCommitSHA)
		pipe.HSet(ctx, key, values)
		pipe.HSetNX(ctx, key, fieldCreatedAt, now)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save review state for %s/%d: %w",
			repo, prNum, err)
	}

	log.TraceS(ctx, "Saved review state document", "key", key,
		"state", state.Name)

	return nil
}

// Delete implements StateStore.
func (r *RedisStore) Delete(ctx context.Context, repo string,
	prNum int64) error {

	err := r.rdb.Del(ctx, r.DocumentKey(repo, prNum)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete review state for %s/%d: %w",
			repo, prNum, err)
	}

	return nil
}

// List implements Lister. Documents deleted while the scan runs are
// skipped.
func (r *RedisStore) List(ctx context.Context) ([]ReviewState, error) {
	var states []ReviewState

	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fields, err := r.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w",
				iter.Val(), err)
		}
		if len(fields) == 0 {
			continue
		}

		state, err := reviewStateFromHash(fields)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan review states: %w", err)
	}

	sortStates(states)

	return states, nil
}

// CountByState implements StateCounter.
func (r *RedisStore) CountByState(ctx context.Context) (map[StateName]int64,
	error) {

	states, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[StateName]int64)
	for _, s := range states {
		counts[s.Name]++
	}

	return counts, nil
}

func reviewStateFromHash(fields map[string]string) (ReviewState, error) {
	name, err := ParseStateName(fields[fieldStateName])
	if err != nil {
		return ReviewState{}, err
	}

	prNum, err := strconv.ParseInt(fields[fieldPRNum], 10, 64)
	if err != nil {
		return ReviewState{}, fmt.Errorf("%w: bad pr_num %q",
			ErrInvalidState, fields[fieldPRNum])
	}

	state := ReviewState{
		Repo:      fields[fieldRepo],
		PRNum:     prNum,
		Name:      name,
		ReviewID:  optionalField(fields, fieldReviewID),
		CommitSHA: optionalField(fields, fieldCommitSHA),
		CreatedAt: unixField(fields, fieldCreatedAt),
		UpdatedAt: unixField(fields, fieldUpdatedAt),
	}
	if err := state.Validate(); err != nil {
		return ReviewState{}, fmt.Errorf("stored state for %s: %w",
			state.Key(), err)
	}

	return state, nil
}

func optionalField(fields map[string]string, name string) fn.Option[string] {
	v, ok := fields[name]
	if !ok {
		return fn.None[string]()
	}

	return fn.Some(v)
}

func unixField(fields map[string]string, name string) time.Time {
	secs, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(secs, 0)
}

var (
	_ ListingStore = (*RedisStore)(nil)
	_ StateCounter = (*RedisStore)(nil)
)
