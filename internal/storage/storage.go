package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	statsRedisKey  = "genrouter:stats"
	redisOpTimeout = 5 * time.Second
)

func emptyStats() *core.RequestStats {
	return &core.RequestStats{RequestHistory: []core.RequestRecord{}}
}

// FileStorage implements stats persistence using a JSON file
type FileStorage struct {
	filePath string
}

func NewFileStorage(filePath string) *FileStorage {
	if filePath == "" {
		filePath = core.StatsFilePath
	}
	return &FileStorage{filePath: filePath}
}

func (fs *FileStorage) SaveStats(stats *core.RequestStats) error {
	data, err := sonic.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return os.WriteFile(fs.filePath, data, core.FilePermissionReadWrite)
}

func (fs *FileStorage) LoadStats() (*core.RequestStats, error) {
	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyStats(), nil
		}
		return nil, err
	}

	var stats core.RequestStats
	if err := sonic.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fs.filePath, err)
	}
	if stats.RequestHistory == nil {
		stats.RequestHistory = []core.RequestRecord{}
	}
	return &stats, nil
}

func (fs *FileStorage) Close() error {
	return nil
}

// RedisStorage implements stats persistence using Redis
type RedisStorage struct {
	client *redis.Client
	key    string
}

// NewRedisClient parses url and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStorage stores stats under key on an existing client. The client
// is owned by the caller.
func NewRedisStorage(client *redis.Client, key string) *RedisStorage {
	if key == "" {
		key = statsRedisKey
	}
	return &RedisStorage{client: client, key: key}
}

func (rs *RedisStorage) SaveStats(stats *core.RequestStats) error {
	data, err := util.MarshalJSON(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return rs.client.Set(ctx, rs.key, data, 0).Err()
}

func (rs *RedisStorage) LoadStats() (*core.RequestStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := rs.client.Get(ctx, rs.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return emptyStats(), nil
		}
		return nil, err
	}

	var stats core.RequestStats
	if err := sonic.Unmarshal(val, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	if stats.RequestHistory == nil {
		stats.RequestHistory = []core.RequestRecord{}
	}
	return &stats, nil
}

func (rs *RedisStorage) Close() error {
	return nil
}

// InitStorage picks Redis when a client is available, otherwise the file at
// filePath.
func InitStorage(client *redis.Client, filePath string, logger core.Logger) core.StorageInterface {
	if client != nil {
		logger.Info("Using Redis stats storage")
		return NewRedisStorage(client, statsRedisKey)
	}
	logger.Info("Using file stats storage")
	return NewFileStorage(filePath)
}
