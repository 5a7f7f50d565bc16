package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quicstack/h3core/quictransport/quictransporttest"
)

// TestServeRunsLoopsConcurrently verifies Serve fans ReadLoop out over
// every socket passed in and returns once they have all drained, rather
// than serializing them.
func TestServeRunsLoopsConcurrently(t *testing.T) {
	a := newUDPLoopback(t)
	b := newUDPLoopback(t)
	require.NoError(t, a.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	require.NoError(t, b.SetReadDeadline(time.Now().Add(10*time.Millisecond)))

	ctx := NewContext(&quictransporttest.Engine{}, nil, nil)

	err := ctx.Serve(context.Background(), a, b)
	require.NoError(t, err)
}
