package wsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

func testCorrelator(t *testing.T) *Correlator {
	t.Helper()
	c := NewCorrelator(slog.Default())
	t.Cleanup(c.Close)
	return c
}

func TestRequestIDScopes(t *testing.T) {
	c := testCorrelator(t)

	bg, _ := c.register(protocol.BackgroundSessionID, targetController)
	assert.True(t, strings.HasPrefix(bg, "bg_"), "id %q", bg)

	req, _ := c.register("session_0a1b2c3d", targetAgent)
	assert.True(t, strings.HasPrefix(req, "req_"), "id %q", req)
	assert.NotEqual(t, bg, req)
}

func TestResolveCompletesExactlyOnce(t *testing.T) {
	c := testCorrelator(t)
	id, ch := c.register("session_0a1b2c3d", targetAgent)

	resp := protocol.NewResponse(protocol.Frame{RequestID: id}, []byte(`{"ok":true}`))
	require.True(t, c.resolve(resp))
	assert.False(t, c.resolve(resp), "second resolve must find nothing")
	assert.False(t, c.reject(id, ErrTimeout), "reject after resolve must find nothing")

	r := <-ch
	require.NoError(t, r.err)
	assert.True(t, r.frame.OK())
	assert.Equal(t, 0, c.Depth())
}

func TestOverflowEvictsOldest(t *testing.T) {
	c := testCorrelator(t)

	ids := make([]string, 0, MaxPending)
	chans := make([]chan result, 0, MaxPending)
	for i := 0; i < MaxPending; i++ {
		id, ch := c.register("session_0a1b2c3d", targetAgent)
		ids = append(ids, id)
		chans = append(chans, ch)
	}
	require.Equal(t, MaxPending, c.Depth())

	// The 51st insertion evicts the oldest and is itself accepted.
	newest, newestCh := c.register("session_0a1b2c3d", targetAgent)
	assert.Equal(t, MaxPending, c.Depth())

	select {
	case r := <-chans[0]:
		assert.ErrorIs(t, r.err, ErrBackPressure)
	default:
		t.Fatal("oldest pending was not evicted")
	}

	resp := protocol.NewResponse(protocol.Frame{RequestID: newest}, []byte(`{}`))
	require.True(t, c.resolve(resp), "newest request must still be answerable")
	r := <-newestCh
	require.NoError(t, r.err)

	// Remaining entries are still live.
	require.True(t, c.resolve(protocol.NewResponse(protocol.Frame{RequestID: ids[1]}, nil)))
	assert.Equal(t, uint64(1), c.Snapshot().Evicted)
}

func TestRejectWhereBySession(t *testing.T) {
	c := testCorrelator(t)
	_, chA := c.register("session_aaaaaaaa", targetAgent)
	_, chB := c.register("session_bbbbbbbb", targetAgent)

	n := c.rejectWhere(func(sid string, _ targetKind) bool { return sid == "session_aaaaaaaa" },
		fmt.Errorf("%w: page agent", ErrPeerGone))
	assert.Equal(t, 1, n)

	r := <-chA
	assert.ErrorIs(t, r.err, ErrPeerGone)
	select {
	case <-chB:
		t.Fatal("unrelated pending was rejected")
	default:
	}
}

func TestSweepRejectsStaleEntries(t *testing.T) {
	c := testCorrelator(t)
	_, ch := c.register(protocol.BackgroundSessionID, targetController)

	c.sweep(time.Now().Add(staleAfter + time.Second))

	r := <-ch
	assert.ErrorIs(t, r.err, ErrStale)
	assert.Equal(t, 0, c.Depth())
	assert.Equal(t, uint64(1), c.Snapshot().Stale)
}

func TestAwaitHonorsCallerContext(t *testing.T) {
	c := testCorrelator(t)
	id, ch := c.register("session_0a1b2c3d", targetAgent)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.await(ctx, id, ch, "fill_field")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout, "caller expiry must surface as the timeout kind")
	assert.Equal(t, 0, c.Depth())
}

func TestAwaitExpiredContextYieldsTimeoutKind(t *testing.T) {
	c := testCorrelator(t)
	id, ch := c.register("session_0a1b2c3d", targetAgent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.await(ctx, id, ch, "click_element")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "click_element")
	assert.Equal(t, 0, c.Depth())
}

func TestAwaitPrefersCompletionOverCancel(t *testing.T) {
	c := testCorrelator(t)
	id, ch := c.register("session_0a1b2c3d", targetAgent)
	require.True(t, c.resolve(protocol.NewResponse(protocol.Frame{RequestID: id}, []byte(`{"done":true}`))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, err := c.await(ctx, id, ch, "fill_field")
	require.NoError(t, err, "a completed pending wins over a dead context")
	assert.True(t, f.OK())
}

func TestCloseRejectsEverything(t *testing.T) {
	c := NewCorrelator(slog.Default())
	_, ch1 := c.register(protocol.BackgroundSessionID, targetController)
	_, ch2 := c.register("session_0a1b2c3d", targetAgent)

	c.Close()

	for _, ch := range []chan result{ch1, ch2} {
		r := <-ch
		assert.ErrorIs(t, r.err, ErrPeerGone)
	}
}
