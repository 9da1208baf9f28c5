package daemon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hausd/itd/internal/engine"
	"github.com/hausd/itd/internal/wire"
)

func newTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	eng := engine.NewInMemory("it", nil)
	sock := filepath.Join(t.TempDir(), "it-sock")
	d := New(eng, sock, nil)
	return d, sock
}

func runDaemon(t *testing.T, d *Daemon) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, d.Run(ctx))
	}()
	return func() {
		cancel()
		<-done
	}
}

// dialWithRetry tolerates the small window between Run's goroutine starting
// and the listener actually being bound.
func dialWithRetry(t *testing.T, sock string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", sock, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemonIngestThenQueryRoundTrip(t *testing.T) {
	d, sock := newTestDaemon(t)
	stop := runDaemon(t, d)
	defer stop()

	conn := dialWithRetry(t, sock)
	defer conn.Close()

	w := bufio.NewWriter(conn)
	fmt.Fprintln(w, "START 2024-01-01 alice")
	fmt.Fprintln(w, "STOP 2024-02-01 alice")
	fmt.Fprintln(w, wire.EOFLine)
	fmt.Fprintln(w, "2024-01-01 2024-03-01")
	require.NoError(t, w.Flush())

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "# 2024-01-01 2024-03-01\n", line)

	body, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, body, "alice")
}

func TestDaemonBlankAndCommentLinesIgnoredDuringIngest(t *testing.T) {
	d, sock := newTestDaemon(t)
	stop := runDaemon(t, d)
	defer stop()

	conn := dialWithRetry(t, sock)
	defer conn.Close()

	w := bufio.NewWriter(conn)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# a comment")
	fmt.Fprintln(w, "START 2024-01-01 alice")
	fmt.Fprintln(w, wire.EOFLine)
	fmt.Fprintln(w, "2024-01-01 2024-03-01")
	require.NoError(t, w.Flush())

	r := bufio.NewReader(conn)
	_, err := r.ReadString('\n')
	require.NoError(t, err)
	body, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, body, "alice")
}

func TestDaemonMalformedQueryYieldsEmptyAnswer(t *testing.T) {
	d, sock := newTestDaemon(t)
	stop := runDaemon(t, d)
	defer stop()

	conn := dialWithRetry(t, sock)
	defer conn.Close()

	w := bufio.NewWriter(conn)
	fmt.Fprintln(w, wire.EOFLine)
	fmt.Fprintln(w, "not-a-valid-query")
	require.NoError(t, w.Flush())

	r := bufio.NewReader(conn)
	echo, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "# not-a-valid-query\n", echo)
}

func TestDaemonMultipleConnectionsShareEngineState(t *testing.T) {
	d, sock := newTestDaemon(t)
	stop := runDaemon(t, d)
	defer stop()

	c1 := dialWithRetry(t, sock)
	w1 := bufio.NewWriter(c1)
	fmt.Fprintln(w1, "START 2024-01-01 alice")
	fmt.Fprintln(w1, wire.EOFLine)
	require.NoError(t, w1.Flush())
	c1.Close()

	// Give the first connection's ingest a moment to land before the
	// second connection queries it.
	time.Sleep(20 * time.Millisecond)

	c2 := dialWithRetry(t, sock)
	defer c2.Close()
	w2 := bufio.NewWriter(c2)
	fmt.Fprintln(w2, wire.EOFLine)
	fmt.Fprintln(w2, "+ 2024-01-01 2024-03-01")
	require.NoError(t, w2.Flush())

	r2 := bufio.NewReader(c2)
	_, err := r2.ReadString('\n')
	require.NoError(t, err)
	body, err := r2.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, body, "alice")
}

func TestDaemonRunRemovesStaleSocket(t *testing.T) {
	d, sock := newTestDaemon(t)

	stale, err := net.Listen("unix", sock)
	require.NoError(t, err)
	stale.Close()

	stop := runDaemon(t, d)
	defer stop()

	conn := dialWithRetry(t, sock)
	conn.Close()
}
