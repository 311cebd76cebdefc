package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"jobdef/internal/api/store"
	"jobdef/internal/api/store/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMiss = errors.New("miss")

type mapCache struct {
	values  map[string][]byte
	gets    int
	deletes int
	setErr  error
}

func (c *mapCache) Get(key string, dest any) error {
	c.gets++
	data, ok := c.values[key]
	if !ok {
		return errMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *mapCache) Set(key string, value any, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = data
	return nil
}

func (c *mapCache) Delete(key string) error {
	c.deletes++
	delete(c.values, key)
	return nil
}

func (c *mapCache) IsMiss(err error) bool { return errors.Is(err, errMiss) }

func TestWithVersionCache(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{values: map[string][]byte{}}
	s := store.WithVersionCache(memory.New(memory.WithServerVersion(15)), cache, "sql01", time.Minute, zerolog.Nop())

	v, err := s.ServerVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, v)
	assert.Contains(t, cache.values, "jobdef:server:sql01:version")

	cache.values["jobdef:server:sql01:version"] = []byte("8")
	v, err = s.ServerVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, v)
	assert.Equal(t, 2, cache.gets)
}

func TestWithVersionCache_DropsUnreadableEntry(t *testing.T) {
	cache := &mapCache{values: map[string][]byte{"jobdef:server:sql01:version": []byte(`"sixteen"`)}}
	s := store.WithVersionCache(memory.New(memory.WithServerVersion(16)), cache, "sql01", time.Minute, zerolog.Nop())

	v, err := s.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, v)
	assert.Equal(t, 1, cache.deletes)
	assert.Equal(t, []byte("16"), cache.values["jobdef:server:sql01:version"])
}

func TestWithVersionCache_CacheFailureFallsThrough(t *testing.T) {
	cache := &mapCache{values: map[string][]byte{}, setErr: errors.New("redis down")}
	s := store.WithVersionCache(memory.New(memory.WithServerVersion(9)), cache, "sql01", time.Minute, zerolog.Nop())

	v, err := s.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}
