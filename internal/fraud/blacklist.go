package fraud

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Blacklist는 출금이 금지된 주소 목록입니다
type Blacklist interface {
	Contains(ctx context.Context, address string) (bool, error)
	Add(ctx context.Context, addresses ...string) error
	Remove(ctx context.Context, addresses ...string) error
}

// normalizeAddress는 대소문자 구분이 없는 16진수 주소만 소문자로 바꿉니다
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr)
	}
	return addr
}

// MemoryBlacklist는 프로세스 내부 블랙리스트입니다
type MemoryBlacklist struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

// NewMemoryBlacklist는 초기 주소 목록으로 블랙리스트를 생성합니다
func NewMemoryBlacklist(addresses ...string) *MemoryBlacklist {
	b := &MemoryBlacklist{addrs: make(map[string]struct{})}
	_ = b.Add(context.Background(), addresses...)
	return b
}

func (b *MemoryBlacklist) Contains(_ context.Context, address string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.addrs[normalizeAddress(address)]
	return ok, nil
}

func (b *MemoryBlacklist) Add(_ context.Context, addresses ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range addresses {
		b.addrs[normalizeAddress(a)] = struct{}{}
	}
	return nil
}

func (b *MemoryBlacklist) Remove(_ context.Context, addresses ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range addresses {
		delete(b.addrs, normalizeAddress(a))
	}
	return nil
}

// RedisBlacklist는 Redis 집합에 저장되는 블랙리스트입니다.
// 여러 인스턴스가 같은 목록을 공유합니다.
type RedisBlacklist struct {
	client redis.UniversalClient
	key    string
}

// NewRedisBlacklist는 새로운 RedisBlacklist를 생성합니다
func NewRedisBlacklist(client redis.UniversalClient, key string) *RedisBlacklist {
	if key == "" {
		key = "fraud:blacklist"
	}
	return &RedisBlacklist{client: client, key: key}
}

func (b *RedisBlacklist) Contains(ctx context.Context, address string) (bool, error) {
	return b.client.SIsMember(ctx, b.key, normalizeAddress(address)).Result()
}

func (b *RedisBlacklist) Add(ctx context.Context, addresses ...string) error {
	if len(addresses) == 0 {
		return nil
	}
	return b.client.SAdd(ctx, b.key, toMembers(addresses)...).Err()
}

func (b *RedisBlacklist) Remove(ctx context.Context, addresses ...string) error {
	if len(addresses) == 0 {
		return nil
	}
	return b.client.SRem(ctx, b.key, toMembers(addresses)...).Err()
}

func toMembers(addresses []string) []any {
	members := make([]any, len(addresses))
	for i, a := range addresses {
		members[i] = normalizeAddress(a)
	}
	return members
}
