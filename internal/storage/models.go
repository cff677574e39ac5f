package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"

	"github.com/redis/go-redis/v9"
)

const (
	modelKeyPrefix = "genrouter:model:"
	modelIndexKey  = "genrouter:models"
)

func modelKey(id string) string {
	return modelKeyPrefix + id
}

func filterModels(models []core.Model, filter core.ModelFilter) []core.Model {
	out := make([]core.Model, 0, len(models))
	for _, m := range models {
		if filter.Match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RedisModelStore reads model documents stored as JSON under
// genrouter:model:<id>, indexed by the set genrouter:models.
type RedisModelStore struct {
	client *redis.Client
	logger core.Logger
}

func NewRedisModelStore(client *redis.Client, logger core.Logger) *RedisModelStore {
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &RedisModelStore{client: client, logger: logger}
}

func (s *RedisModelStore) Get(ctx context.Context, modelID string) (core.Model, error) {
	data, err := s.client.Get(ctx, modelKey(modelID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Model{}, core.ErrNotFound
		}
		return core.Model{}, fmt.Errorf("redis get %s: %w", modelID, err)
	}

	var m core.Model
	if err := util.UnmarshalJSON(data, &m); err != nil {
		return core.Model{}, fmt.Errorf("decode model %s: %w", modelID, err)
	}
	return m, nil
}

func (s *RedisModelStore) List(ctx context.Context, filter core.ModelFilter) ([]core.Model, error) {
	ids, err := s.client.SMembers(ctx, modelIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	if len(ids) == 0 {
		return []core.Model{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = modelKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	models := make([]core.Model, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Debug("model %s is indexed but has no document", ids[i])
			continue
		}
		var m core.Model
		if err := util.UnmarshalJSON([]byte(raw), &m); err != nil {
			s.logger.Warn("skipping undecodable model %s: %v", ids[i], err)
			continue
		}
		models = append(models, m)
	}
	return filterModels(models, filter), nil
}

// Put writes m and indexes it. Used to seed the store.
func (s *RedisModelStore) Put(ctx context.Context, m core.Model) error {
	data, err := util.MarshalJSON(m)
	if err != nil {
		return fmt.Errorf("encode model %s: %w", m.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, modelKey(m.ID), data, 0)
		pipe.SAdd(ctx, modelIndexKey, m.ID)
		return nil
	})
	return err
}

// FileModelStore serves models from a JSON array on disk and reloads it
// when the file's modification time changes.
type FileModelStore struct {
	path   string
	logger core.Logger

	mu      sync.RWMutex
	modTime time.Time
	models  map[string]core.Model
}

// NewFileModelStore loads path. A missing file yields an empty store that
// picks the file up once it appears.
func NewFileModelStore(path string, logger core.Logger) (*FileModelStore, error) {
	if path == "" {
		path = core.DefaultModelsFile
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	s := &FileModelStore{path: path, logger: logger, models: map[string]core.Model{}}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileModelStore) refresh() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("models file %s not found, serving no models", s.path)
			return nil
		}
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	s.mu.RLock()
	unchanged := info.ModTime().Equal(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	var list []core.Model
	if err := util.UnmarshalJSON(data, &list); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	models := make(map[string]core.Model, len(list))
	for _, m := range list {
		if m.ID == "" {
			continue
		}
		models[m.ID] = m
	}

	s.mu.Lock()
	s.models = models
	s.modTime = info.ModTime()
	s.mu.Unlock()
	s.logger.Info("loaded %d models from %s", len(models), s.path)
	return nil
}

func (s *FileModelStore) Get(ctx context.Context, modelID string) (core.Model, error) {
	if err := s.refresh(); err != nil {
		return core.Model{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[modelID]
	if !ok {
		return core.Model{}, core.ErrNotFound
	}
	return m, nil
}

func (s *FileModelStore) List(ctx context.Context, filter core.ModelFilter) ([]core.Model, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return filterModels(s.snapshot(), filter), nil
}

// All returns every model currently loaded.
func (s *FileModelStore) All() []core.Model {
	return filterModels(s.snapshot(), core.ModelFilter{})
}

func (s *FileModelStore) snapshot() []core.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	return out
}

// MemoryModelStore is an in-process store.
type MemoryModelStore struct {
	mu     sync.RWMutex
	models map[string]core.Model
}

func NewMemoryModelStore(models ...core.Model) *MemoryModelStore {
	s := &MemoryModelStore{models: make(map[string]core.Model, len(models))}
	for _, m := range models {
		s.models[m.ID] = m
	}
	return s
}

func (s *MemoryModelStore) Put(m core.Model) {
	s.mu.Lock()
	s.models[m.ID] = m
	s.mu.Unlock()
}

func (s *MemoryModelStore) Delete(modelID string) {
	s.mu.Lock()
	delete(s.models, modelID)
	s.mu.Unlock()
}

func (s *MemoryModelStore) Get(ctx context.Context, modelID string) (core.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[modelID]
	if !ok {
		return core.Model{}, core.ErrNotFound
	}
	return m, nil
}

func (s *MemoryModelStore) List(ctx context.Context, filter core.ModelFilter) ([]core.Model, error) {
	s.mu.RLock()
	all := make([]core.Model, 0, len(s.models))
	for _, m := range s.models {
		all = append(all, m)
	}
	s.mu.RUnlock()
	return filterModels(all, filter), nil
}
