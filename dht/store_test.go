package dht

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueStoreRoundTrip(t *testing.T) {
	clk := clock.NewMock()
	s := NewValueStore(clk)

	key := SHA1Digest([]byte("key"))
	value := json.RawMessage(`{"user_id":"alice"}`)
	s.Put(key, value, time.Hour)

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Get(SHA1Digest([]byte("other")))
	assert.False(t, ok)
}

func TestValueStoreExpiry(t *testing.T) {
	clk := clock.NewMock()
	s := NewValueStore(clk)

	key := SHA1Digest([]byte("key"))
	s.Put(key, json.RawMessage(`1`), time.Minute)

	clk.Add(time.Minute + time.Second)

	_, ok := s.Get(key)
	assert.False(t, ok, "expired values are not returned")
	assert.Equal(t, 1, s.Len(), "expired values linger until swept")

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Sweep())
}

func TestValueStoreRePutRefreshesExpiry(t *testing.T) {
	clk := clock.NewMock()
	s := NewValueStore(clk)

	key := SHA1Digest([]byte("key"))
	s.Put(key, json.RawMessage(`1`), time.Minute)

	clk.Add(45 * time.Second)
	s.Put(key, json.RawMessage(`2`), time.Minute)

	clk.Add(45 * time.Second)
	got, ok := s.Get(key)
	require.True(t, ok, "re-announcement must push expiry out")
	assert.Equal(t, json.RawMessage(`2`), got)
}

func TestStoredValueIsExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	v := &StoredValue{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, v.IsExpired(now))

	v.ExpiresAt = now.Add(time.Second)
	assert.False(t, v.IsExpired(now))
}
