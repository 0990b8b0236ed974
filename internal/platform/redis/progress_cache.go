package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	indexKey    = "task:index"
	pingTimeout = 10 * time.Second
)

// Hash fields of a cached snapshot
const (
	fieldKind         = "kind"
	fieldName         = "name"
	fieldState        = "state"
	fieldProgress     = "progress"
	fieldDetail       = "detail"
	fieldBehaviour    = "behaviour"
	fieldError        = "error"
	fieldTerminatedAt = "terminated_at"
)

// ProgressCache implements housekeeping.ProgressSink on a Redis server
type ProgressCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// New connects to the configured server and checks it answers
func New(ctx context.Context, cfg config.RedisConfig) (*ProgressCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	return &ProgressCache{client: client, ttl: cfg.TTL}, nil
}

// Publish writes one hash per snapshot in a single transaction
func (c *ProgressCache) Publish(ctx context.Context, snapshots []task.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, s := range snapshots {
			key := taskKey(s.ID)
			pipe.HSet(ctx, key, snapshotFields(s))
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			pipe.SAdd(ctx, indexKey, s.ID.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish %d snapshots: %w", len(snapshots), err)
	}
	return nil
}

// Forget drops the cached snapshot of a task
func (c *ProgressCache) Forget(ctx context.Context, id uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, taskKey(id))
		pipe.SRem(ctx, indexKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to forget task %s: %w", id, err)
	}
	return nil
}

// Get reads the cached snapshot of a task
func (c *ProgressCache) Get(ctx context.Context, id uuid.UUID) (task.Snapshot, error) {
	fields, err := c.client.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("failed to read task %s: %w", id, err)
	}
	if len(fields) == 0 {
		return task.Snapshot{}, fmt.Errorf("%w: cached task %s", store.ErrNotFound, id)
	}
	return decodeSnapshot(id, fields)
}

// List reads every cached snapshot. Ids whose hash expired are pruned from
// the index.
func (c *ProgressCache) List(ctx context.Context) ([]task.Snapshot, error) {
	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task index: %w", err)
	}

	snapshots := make([]task.Snapshot, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		s, err := c.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			c.client.SRem(ctx, indexKey, member)
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// Close closes the client
func (c *ProgressCache) Close() error {
	return c.client.Close()
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id)
}

func snapshotFields(s task.Snapshot) map[string]any {
	terminatedAt := ""
	if s.TerminatedAt != nil {
		terminatedAt = s.TerminatedAt.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		fieldKind:         s.Kind,
		fieldName:         s.Name,
		fieldState:        s.State.String(),
		fieldProgress:     s.Progress,
		fieldDetail:       s.Detail,
		fieldBehaviour:    s.Behaviour.String(),
		fieldError:        s.Error,
		fieldTerminatedAt: terminatedAt,
	}
}

func decodeSnapshot(id uuid.UUID, fields map[string]string) (task.Snapshot, error) {
	state, err := task.ParseState(fields[fieldState])
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("cached task %s: %w", id, err)
	}
	behaviour, err := task.ParseBehaviour(fields[fieldBehaviour])
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("cached task %s: %w", id, err)
	}
	progress, err := strconv.Atoi(fields[fieldProgress])
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("cached task %s: invalid progress %q", id, fields[fieldProgress])
	}

	s := task.Snapshot{
		ID:        id,
		Kind:      fields[fieldKind],
		Name:      fields[fieldName],
		State:     state,
		Progress:  progress,
		Detail:    fields[fieldDetail],
		Behaviour: behaviour,
		Error:     fields[fieldError],
	}
	if raw := fields[fieldTerminatedAt]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return task.Snapshot{}, fmt.Errorf("cached task %s: invalid termination time %q", id, raw)
		}
		s.TerminatedAt = &at
	}
	return s, nil
}
