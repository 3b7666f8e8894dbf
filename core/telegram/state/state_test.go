package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Region string   `json:"region"`
	Items  []string `json:"items"`
}

const stateBusy State = "busy"

func backends(t *testing.T) map[string]Manager[payload] {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Manager[payload]{
		"memory": NewMemoryManager[payload](),
		"redis":  NewRedisManager[payload](client, RedisOptions{Prefix: "test:", TTL: time.Minute}),
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, m := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := m.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, StateIdle, s.State)
			assert.Empty(t, s.Data.Region)

			require.NoError(t, m.Update(ctx, 1, func(s *Session[payload]) {
				s.State = stateBusy
				s.Data.Region = "europe"
				s.Data.Items = []string{"a", "b"}
			}))

			s, err = m.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, stateBusy, s.State)
			assert.Equal(t, "europe", s.Data.Region)
			assert.Equal(t, []string{"a", "b"}, s.Data.Items)
			assert.False(t, s.UpdatedAt.IsZero())

			require.NoError(t, m.SetState(ctx, 1, StateIdle))
			st, err := m.CurrentState(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, StateIdle, st)

			other, err := m.Get(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, StateIdle, other.State)

			require.NoError(t, m.Clear(ctx, 1))
			s, err = m.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, StateIdle, s.State)
			assert.Empty(t, s.Data.Region)

			assert.NoError(t, m.Ping(ctx))
		})
	}
}

func TestManagerLockSerializesUser(t *testing.T) {
	ctx := context.Background()
	for name, m := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock := m.Lock(7)
					defer unlock()
					s, err := m.Get(ctx, 7)
					if err != nil {
						return
					}
					items := append(append([]string(nil), s.Data.Items...), "x")
					_ = m.Update(ctx, 7, func(s *Session[payload]) { s.Data.Items = items })
				}()
			}
			wg.Wait()
			s, err := m.Get(ctx, 7)
			require.NoError(t, err)
			assert.Len(t, s.Data.Items, 20)
		})
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock(1)
	assert.Equal(t, 1, k.size())
	unlock()
	unlock()
	assert.Equal(t, 0, k.size())
}
