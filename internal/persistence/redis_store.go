package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jfet97/perform/pkg/api"
)

// RedisStore is a RunStore and EventStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>:run:<id>             => gob-encoded redisRunPayload
//	<prefix>:events:<id>          => LIST of gob-encoded redisEventPayload
//	<prefix>:idx:all              => SET of all run IDs
//	<prefix>:idx:name:<name>      => SET of run IDs for a given task name
//	<prefix>:idx:status:<status>  => SET of run IDs for a given status
//
// Status indexes are moved on UpdateRun; ListRuns re-checks the decoded
// payload so a stale index entry is never reported.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ RunStore   = (*RedisStore)(nil)
	_ EventStore = (*RedisStore)(nil)
)

type redisRunPayload struct {
	ID         string
	Name       string
	Mode       string
	Status     string
	Attempts   int
	Restarts   int
	Retries    int
	Recoveries int
	Error      string
	StartedAt  int64
	FinishedAt int64
}

type redisEventPayload struct {
	At      int64
	Type    string
	Attempt int
	Detail  string
}

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "perform:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "perform:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyRun(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisStore) keyEvents(id string) string {
	return s.prefix + "events:" + id
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyName(name string) string {
	return s.prefix + "idx:name:" + name
}

func (s *RedisStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

func encodeRun(run *api.Run) ([]byte, error) {
	payload := redisRunPayload{
		ID:         run.ID,
		Name:       run.Name,
		Mode:       string(run.Mode),
		Status:     string(run.Status),
		Attempts:   run.Attempts,
		Restarts:   run.Restarts,
		Retries:    run.Retries,
		Recoveries: run.Recoveries,
		Error:      errString(run.Err),
		StartedAt:  unixNano(run.StartedAt),
		FinishedAt: unixNano(run.FinishedAt),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRun(data []byte) (*api.Run, error) {
	if len(data) == 0 {
		return nil, ErrRunNotFound
	}
	var payload redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	return &api.Run{
		ID:         payload.ID,
		Name:       payload.Name,
		Mode:       api.Mode(payload.Mode),
		Status:     api.Status(payload.Status),
		Attempts:   payload.Attempts,
		Restarts:   payload.Restarts,
		Retries:    payload.Retries,
		Recoveries: payload.Recoveries,
		Err:        errFromString(payload.Error),
		StartedAt:  fromUnixNano(payload.StartedAt),
		FinishedAt: fromUnixNano(payload.FinishedAt),
	}, nil
}

func (s *RedisStore) SaveRun(ctx context.Context, run *api.Run) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyRun(run.ID), data, 0)
	pipe.SAdd(ctx, s.keyAll(), run.ID)
	pipe.SAdd(ctx, s.keyName(run.Name), run.ID)
	pipe.SAdd(ctx, s.keyStatus(run.Status), run.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) UpdateRun(ctx context.Context, run *api.Run) error {
	prev, err := s.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}

	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyRun(run.ID), data, 0)
	if prev.Status != run.Status {
		pipe.SRem(ctx, s.keyStatus(prev.Status), run.ID)
	}
	if prev.Name != run.Name {
		pipe.SRem(ctx, s.keyName(prev.Name), run.ID)
	}
	pipe.SAdd(ctx, s.keyName(run.Name), run.ID)
	pipe.SAdd(ctx, s.keyStatus(run.Status), run.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	data, err := s.client.Get(ctx, s.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return decodeRun(data)
}

func (s *RedisStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	var ids []string
	var err error

	switch {
	case filter.Name != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx,
			s.keyName(filter.Name),
			s.keyStatus(filter.Status),
		).Result()
	case filter.Name != "":
		ids, err = s.client.SMembers(ctx, s.keyName(filter.Name)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.Run{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.Run{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyRun(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var runs []*api.Run
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		if !filter.matches(run) {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})

	return runs, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	var buf bytes.Buffer
	payload := redisEventPayload{
		At:      at.UnixNano(),
		Type:    string(ev.Type),
		Attempt: ev.Attempt,
		Detail:  ev.Detail,
	}
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return err
	}

	return s.client.RPush(ctx, s.keyEvents(ev.RunID), buf.Bytes()).Err()
}

func (s *RedisStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	raw, err := s.client.LRange(ctx, s.keyEvents(runID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]api.RunEvent, 0, len(raw))
	for _, item := range raw {
		var payload redisEventPayload
		if err := gob.NewDecoder(bytes.NewReader([]byte(item))).Decode(&payload); err != nil {
			return nil, err
		}
		out = append(out, api.RunEvent{
			RunID:   runID,
			At:      time.Unix(0, payload.At),
			Type:    api.EventType(payload.Type),
			Attempt: payload.Attempt,
			Detail:  payload.Detail,
		})
	}
	return out, nil
}
