package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/once/pkg/once"
)

// DefaultPrefix groups every key in one hash slot so the scripts also run
// on Redis Cluster.
const DefaultPrefix = "{once}"

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'object_name', ARGV[2], 'state', ARGV[3], 'created_at', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

var markServedScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state ~= ARGV[2] then return 0 end
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'served_at', ARGV[4])
redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[1])
return 1
`)

var deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then return 0 end
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[1])
return 1
`)

// Repository implements once.Repository with one hash per entry and one
// set of ids per state.
type Repository struct {
	client redis.UniversalClient
	prefix string
}

// New creates a repository using client
func New(client redis.UniversalClient, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) entryKey(id string) string {
	return r.prefix + ":entry:" + id
}

func (r *Repository) stateKey(state once.EntryState) string {
	return r.prefix + ":state:" + string(state)
}

func (r *Repository) CreateEntry(ctx context.Context, entry *once.Entry) error {
	created, err := createScript.Run(ctx, r.client,
		[]string{r.entryKey(entry.ID), r.stateKey(entry.State)},
		entry.ID, entry.ObjectName, string(entry.State), entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: create entry: %w", err)
	}
	if created == 0 {
		return once.ErrEntryExists
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, id string) (*once.Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.entryKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, once.ErrEntryNotFound
	}
	return decodeEntry(fields), nil
}

func (r *Repository) MarkServed(ctx context.Context, id string, servedAt time.Time) error {
	result, err := markServedScript.Run(ctx, r.client,
		[]string{r.entryKey(id), r.stateKey(once.EntryStatePending), r.stateKey(once.EntryStateServed)},
		id, string(once.EntryStatePending), string(once.EntryStateServed), servedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: mark served: %w", err)
	}
	switch result {
	case 1:
		return nil
	case -1:
		return once.ErrEntryNotFound
	default:
		return once.ErrEntryAlreadyServed
	}
}

func (r *Repository) ListEntriesByState(ctx context.Context, state once.EntryState) ([]*once.Entry, error) {
	ids, err := r.client.SMembers(ctx, r.stateKey(state)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list entries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.entryKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: load entries: %w", err)
	}

	entries := make([]*once.Entry, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		entry := decodeEntry(fields)
		if entry.State == state {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	deleted, err := deleteScript.Run(ctx, r.client,
		[]string{r.entryKey(id), r.stateKey(once.EntryStatePending), r.stateKey(once.EntryStateServed)},
		id,
	).Int()
	if err != nil {
		return fmt.Errorf("redis: delete entry: %w", err)
	}
	if deleted == 0 {
		return once.ErrEntryNotFound
	}
	return nil
}

func decodeEntry(fields map[string]string) *once.Entry {
	entry := &once.Entry{
		ID:         fields["id"],
		ObjectName: fields["object_name"],
		State:      once.EntryState(fields["state"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		entry.CreatedAt = t
	}
	if v, ok := fields["served_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			entry.ServedAt = &t
		}
	}
	return entry
}
