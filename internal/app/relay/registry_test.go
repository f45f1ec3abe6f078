package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeConn records what the relay does to a connection.
type fakeConn struct {
	id string

	mu          sync.Mutex
	delivered   []ReceivePayload
	deliverErr  error
	terminated  bool
	closeCode   int
	closeReason string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Deliver(payload ReceivePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deliverErr != nil {
		return c.deliverErr
	}
	c.delivered = append(c.delivered, payload)
	return nil
}

func (c *fakeConn) Terminate(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
	c.closeCode = code
	c.closeReason = reason
}

func (c *fakeConn) Delivered() []ReceivePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ReceivePayload(nil), c.delivered...)
}

func (c *fakeConn) Terminated() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated, c.closeCode
}

func TestRegistry_SetGetRemove(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	conn := newFakeConn("conn_a")

	_, replaced := r.Set(Entry{UserID: "u1", Username: "alice", Conn: conn})
	req.False(replaced)

	e, ok := r.Get("u1")
	req.True(ok)
	req.Equal("alice", e.Username)
	req.Same(conn, e.Conn)

	byConn, ok := r.LookupByConn("conn_a")
	req.True(ok)
	req.Equal("u1", byConn.UserID)

	removed, ok := r.Remove("u1")
	req.True(ok)
	req.Equal("u1", removed.UserID)

	_, ok = r.Get("u1")
	req.False(ok)
	_, ok = r.LookupByConn("conn_a")
	req.False(ok)
	req.Zero(r.Len())
}

func TestRegistry_Set_ReplacesOtherConnection(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	first := newFakeConn("conn_1")
	second := newFakeConn("conn_2")

	// Given alice registered on the first connection
	r.Set(Entry{UserID: "u1", Username: "alice", Conn: first})

	// When she authenticates again on a second connection
	displaced, replaced := r.Set(Entry{UserID: "u1", Username: "alice", Conn: second})

	// Then the second wins and the first no longer maps to anyone
	req.True(replaced)
	req.Same(first, displaced.Conn)

	e, _ := r.Get("u1")
	req.Same(second, e.Conn)
	_, ok := r.LookupByConn("conn_1")
	req.False(ok)
	req.Equal(1, r.Len())
}

func TestRegistry_Set_SameConnectionIsNotAReplacement(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	conn := newFakeConn("conn_1")

	r.Set(Entry{UserID: "u1", Username: "alice", Token: "old", Conn: conn})
	_, replaced := r.Set(Entry{UserID: "u1", Username: "alice", Token: "new", Conn: conn})

	req.False(replaced)
	e, _ := r.Get("u1")
	req.Equal("new", e.Token)
}

func TestRegistry_Set_ConnectionSwitchesUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	conn := newFakeConn("conn_1")

	r.Set(Entry{UserID: "u1", Username: "alice", Conn: conn})
	r.Set(Entry{UserID: "u2", Username: "bob", Conn: conn})

	_, ok := r.Get("u1")
	req.False(ok)
	e, ok := r.LookupByConn("conn_1")
	req.True(ok)
	req.Equal("u2", e.UserID)
	req.Equal([]string{"u2"}, r.UserIDs())
}

func TestRegistry_RemoveByConn_OnlyOwnEntry(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	first := newFakeConn("conn_1")
	second := newFakeConn("conn_2")

	r.Set(Entry{UserID: "u1", Conn: first})
	r.Set(Entry{UserID: "u1", Conn: second})

	// The displaced connection closing must not evict the live one.
	_, ok := r.RemoveByConn("conn_1")
	req.False(ok)
	e, ok := r.Get("u1")
	req.True(ok)
	req.Same(second, e.Conn)

	_, ok = r.RemoveByConn("conn_2")
	req.True(ok)
	req.Zero(r.Len())

	_, ok = r.RemoveByConn("conn_never")
	req.False(ok)
}

func TestRegistry_Snapshots(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	r.Set(Entry{UserID: "u2", Conn: newFakeConn("c2")})
	r.Set(Entry{UserID: "u1", Conn: newFakeConn("c1")})

	req.Equal([]string{"u1", "u2"}, r.UserIDs())

	entries := r.Entries()
	req.Len(entries, 2)
	req.Equal("u1", entries[0].UserID)
	req.Equal("u2", entries[1].UserID)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("conn_%d", i))
			r.Set(Entry{UserID: "shared", Conn: conn})
			r.LookupByConn(conn.ID())
			r.RemoveByConn(conn.ID())
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, r.Len(), 1)
}
