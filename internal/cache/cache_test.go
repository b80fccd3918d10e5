package cache_test

import (
	"testing"
	"time"

	"github.com/nullbind/dohgate/internal/cache"
	"github.com/nullbind/dohgate/internal/dnsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func q(name string) dnsutil.Question {
	return dnsutil.Question{Name: name, Qtype: 1, Qclass: 1}
}

func TestInsertThenLookupHits(t *testing.T) {
	c := cache.New(true)
	c.Insert(q("example.com"), []byte("resp"), 30*time.Second)

	resp, remaining, ok := c.Lookup(q("example.com"))
	require.True(t, ok)
	assert.Equal(t, []byte("resp"), resp)
	assert.GreaterOrEqual(t, remaining, 1)
	assert.LessOrEqual(t, remaining, 30)
}

func TestLookupMissOnUnknownQuestion(t *testing.T) {
	c := cache.New(true)
	_, _, ok := c.Lookup(q("unknown.com"))
	assert.False(t, ok)
}

func TestLookupNeverReturnsExpiredEntry(t *testing.T) {
	c := cache.New(true)
	c.Insert(q("example.com"), []byte("resp"), 1*time.Second)

	time.Sleep(1100 * time.Millisecond)
	_, _, ok := c.Lookup(q("example.com"))
	assert.False(t, ok)
}

func TestInsertReplacesExistingEntry(t *testing.T) {
	c := cache.New(true)
	c.Insert(q("example.com"), []byte("first"), 30*time.Second)
	c.Insert(q("example.com"), []byte("second"), 30*time.Second)

	resp, _, ok := c.Lookup(q("example.com"))
	require.True(t, ok)
	assert.Equal(t, []byte("second"), resp)
}

func TestTTLClamping(t *testing.T) {
	c := cache.New(true)

	c.Insert(q("zero.com"), []byte("a"), 0)
	_, remaining, ok := c.Lookup(q("zero.com"))
	require.True(t, ok)
	assert.Equal(t, 60, remaining) // default TTL when answer had none

	c.Insert(q("toolow.com"), []byte("a"), 0*time.Second-1)
	_, remaining, ok = c.Lookup(q("toolow.com"))
	require.True(t, ok)
	assert.LessOrEqual(t, remaining, 1)

	c.Insert(q("toohigh.com"), []byte("a"), 7200*time.Second)
	_, remaining, ok = c.Lookup(q("toohigh.com"))
	require.True(t, ok)
	assert.LessOrEqual(t, remaining, 3600)
}

func TestPruneRemovesOnlyExpired(t *testing.T) {
	c := cache.New(true)
	c.Insert(q("short.com"), []byte("a"), 1*time.Second)
	c.Insert(q("long.com"), []byte("b"), 30*time.Second)

	time.Sleep(1100 * time.Millisecond)
	removed := c.Prune()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Size())
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := cache.New(false)
	c.Insert(q("example.com"), []byte("resp"), 30*time.Second)

	_, _, ok := c.Lookup(q("example.com"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Prune())
}

func TestInsertDoesNotAliasCallerBuffer(t *testing.T) {
	c := cache.New(true)
	buf := []byte("resp")
	c.Insert(q("example.com"), buf, 30*time.Second)
	buf[0] = 'X'

	resp, _, ok := c.Lookup(q("example.com"))
	require.True(t, ok)
	assert.Equal(t, []byte("resp"), resp)
}
