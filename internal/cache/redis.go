package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tutorbox-backend/internal/logger"
)

// ErrDraftNotFound 저장된 드래프트 없음
var ErrDraftNotFound = errors.New("draft not found")

// Draft 자동 저장이 꺼진 동안 보관하는 슬라이드 스냅샷
type Draft struct {
	UserID    int64           `json:"userId"`
	LessonID  int64           `json:"lessonId"`
	SlideID   int64           `json:"slideId"`
	Snapshot  json.RawMessage `json:"snapshot"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RedisClient wraps the Redis client for editor drafts
type RedisClient struct {
	client   *redis.Client
	draftTTL time.Duration
	log      *logger.Logger
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, draftTTL time.Duration, log *logger.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNop()
	}
	log.Info("redis connected", "addr", addr)
	return NewFromClient(client, draftTTL, log), nil
}

// NewFromClient 이미 만들어진 클라이언트로 생성 (테스트용)
func NewFromClient(client *redis.Client, draftTTL time.Duration, log *logger.Logger) *RedisClient {
	if draftTTL <= 0 {
		draftTTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisClient{client: client, draftTTL: draftTTL, log: log}
}

func draftKey(userID, slideID int64) string {
	return fmt.Sprintf("draft:%d:slide:%d", userID, slideID)
}

// SaveDraft 슬라이드 스냅샷을 TTL 과 함께 덮어쓴다.
// nil 클라이언트(Redis 미설정)면 아무것도 하지 않는다.
func (r *RedisClient) SaveDraft(ctx context.Context, d Draft) error {
	if r == nil {
		return nil
	}
	d.UpdatedAt = time.Now()

	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, draftKey(d.UserID, d.SlideID), data, r.draftTTL).Err(); err != nil {
		r.log.Warn("failed to save draft", "user_id", d.UserID, "slide_id", d.SlideID, "error", err)
		return err
	}
	return nil
}

// LoadDraft 저장된 드래프트 조회
func (r *RedisClient) LoadDraft(ctx context.Context, userID, slideID int64) (*Draft, error) {
	if r == nil {
		return nil, ErrDraftNotFound
	}

	data, err := r.client.Get(ctx, draftKey(userID, slideID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

// DeleteDraft 저장 후 드래프트 제거
func (r *RedisClient) DeleteDraft(ctx context.Context, userID, slideID int64) error {
	if r == nil {
		return nil
	}
	return r.client.Del(ctx, draftKey(userID, slideID)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	if r == nil {
		return errors.New("redis not configured")
	}
	return r.client.Ping(ctx).Err()
}
