package line

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore guarda los nonce de state del flujo OAuth hasta el callback.
type StateStore interface {
	Save(ctx context.Context, state string) error
	Consume(ctx context.Context, state string) (bool, error)
}

// NewState genera un nonce aleatorio para el parámetro state.
func NewState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

const stateTTL = 10 * time.Minute

type memoryStateStore struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemoryStateStore() StateStore {
	return &memoryStateStore{items: make(map[string]time.Time)}
}

func (s *memoryStateStore) Save(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state] = time.Now().UTC().Add(stateTTL)
	return nil
}

func (s *memoryStateStore) Consume(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[state]
	if !ok {
		return false, nil
	}
	delete(s.items, state)
	if time.Now().UTC().After(exp) {
		return false, nil
	}
	return true, nil
}

type redisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client) StateStore {
	if client == nil {
		return nil
	}
	return &redisStateStore{client: client, prefix: "line:state:"}
}

func (s *redisStateStore) Save(ctx context.Context, state string) error {
	return s.client.Set(ctx, s.prefix+state, "1", stateTTL).Err()
}

func (s *redisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	n, err := s.client.Del(ctx, s.prefix+state).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
