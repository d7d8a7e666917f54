package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker는 공급자별 동기화 중복 실행을 막는 잠금 인터페이스입니다
type Locker interface {
	// TryLock은 잠금을 시도합니다. 다른 곳에서 이미 잡고 있으면 ok=false를 반환합니다.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// MemoryLocker는 단일 프로세스용 잠금입니다
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> 만료 시각
	clock func() time.Time
}

// NewMemoryLocker는 새로운 MemoryLocker를 생성합니다
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// 만료 후 다른 소유자가 다시 잡은 잠금은 풀지 않습니다
		if cur, ok := l.held[key]; ok && cur.Equal(exp) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}

// releaseScript는 토큰이 일치할 때만 키를 삭제합니다
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker는 여러 인스턴스가 공유하는 SETNX 기반 잠금입니다
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker는 새로운 RedisLocker를 생성합니다
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("잠금 획득 실패 [%s]: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// 호출자 컨텍스트가 이미 취소되었어도 잠금은 풀어야 합니다
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}
	return release, true, nil
}
