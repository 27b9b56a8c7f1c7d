package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/store"
)

const (
	eventuallyTimeout = 10 * time.Second
	eventuallyTick    = 50 * time.Millisecond
)

func wsDial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, f frame) {
	t.Helper()
	assert.NoError(t, conn.WriteJSON(f))
}

func wsRead(t *testing.T, conn *websocket.Conn) (string, error) {
	t.Helper()
	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	return string(data), err
}

func wsAuth(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	wsSend(t, conn, frame{Event: "auth", Args: []string{testSecret}})
	banner, err := wsRead(t, conn)
	assert.NoError(t, err)
	assert.Contains(t, banner, "[kswings] connected!")
}

func TestSessionRejectsUnauthenticatedEvent(t *testing.T) {
	_, rt, _, ts := testServer(t)
	conn := wsDial(t, ts, "/exec/cid-1")

	wsSend(t, conn, frame{Event: "power:start"})

	var closeErr error
	for {
		_, err := wsRead(t, conn)
		if err != nil {
			closeErr = err
			break
		}
	}
	assert.True(t, websocket.IsCloseError(closeErr, websocket.ClosePolicyViolation), "expected close 1008, got %v", closeErr)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	assert.Empty(t, rt.started, "unauthenticated event must not reach the runtime")
}

func TestSessionWrongSecret(t *testing.T) {
	_, _, _, ts := testServer(t)
	conn := wsDial(t, ts, "/exec/cid-1")

	wsSend(t, conn, frame{Event: "auth", Args: []string{"wrong"}})

	sawReply := false
	var closeErr error
	for {
		msg, err := wsRead(t, conn)
		if err != nil {
			closeErr = err
			break
		}
		if msg == "Authentication failed" {
			sawReply = true
		}
	}
	assert.True(t, sawReply, "expected an inline failure reply")
	assert.True(t, websocket.IsCloseError(closeErr, websocket.ClosePolicyViolation), "expected close 1008, got %v", closeErr)
}

func TestSessionUnsupportedKind(t *testing.T) {
	_, _, _, ts := testServer(t)
	conn := wsDial(t, ts, "/ftp/cid-1")

	_, err := wsRead(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError), "expected close 1002, got %v", err)
}

func TestSessionMissingContainerID(t *testing.T) {
	_, _, _, ts := testServer(t)
	conn := wsDial(t, ts, "/exec")

	_, err := wsRead(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "expected close 1008, got %v", err)
}

func TestSessionInvalidJSON(t *testing.T) {
	_, _, _, ts := testServer(t)
	conn := wsDial(t, ts, "/exec/cid-1")

	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg, err := wsRead(t, conn)
	assert.NoError(t, err)
	assert.Equal(t, "Invalid JSON", msg)
}

func TestSessionUnsupportedEvent(t *testing.T) {
	_, _, _, ts := testServer(t)
	conn := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, conn)

	wsSend(t, conn, frame{Event: "teleport"})
	msg, err := wsRead(t, conn)
	assert.NoError(t, err)
	assert.Equal(t, "Unsupported event", msg)
}

func TestExecSessionStreamsLogs(t *testing.T) {
	_, rt, _, ts := testServer(t)

	pr, pw := io.Pipe()
	rt.mu.Lock()
	rt.logs = pr
	rt.mu.Unlock()
	defer pw.Close()

	conn := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, conn)

	_, err := pw.Write([]byte("hello\nworld\n"))
	assert.NoError(t, err)

	var lines []string
	for len(lines) < 2 {
		msg, err := wsRead(t, conn)
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(msg, "\r\n\u001b[34m[docker] \u001b[0m"), "unexpected framing: %q", msg)
		line := strings.TrimSuffix(strings.TrimPrefix(msg, "\r\n\u001b[34m[docker] \u001b[0m"), "\r\n")
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestExecSessionsShareLogStream(t *testing.T) {
	_, rt, _, ts := testServer(t)

	pr, pw := io.Pipe()
	rt.mu.Lock()
	rt.logs = pr
	rt.mu.Unlock()
	defer pw.Close()

	readLine := func(conn *websocket.Conn) string {
		msg, err := wsRead(t, conn)
		assert.NoError(t, err)
		return strings.TrimSuffix(strings.TrimPrefix(msg, "\r\n\u001b[34m[docker] \u001b[0m"), "\r\n")
	}

	connA := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, connA)

	_, err := pw.Write([]byte("one\ntwo\n"))
	assert.NoError(t, err)
	assert.Equal(t, "one", readLine(connA))
	assert.Equal(t, "two", readLine(connA))

	// a second session replays the shared buffer instead of opening a
	// stream of its own
	connB := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, connB)
	assert.Equal(t, "one", readLine(connB))
	assert.Equal(t, "two", readLine(connB))

	_, err = pw.Write([]byte("three\n"))
	assert.NoError(t, err)
	assert.Equal(t, "three", readLine(connA))
	assert.Equal(t, "three", readLine(connB))

	assert.Equal(t, 1, rt.logsCallCount(), "one follow stream per container")

	// detach and re-attach: the buffered history arrives before any new
	// line, and each line was buffered exactly once despite the two
	// sessions that were attached while it was written
	connB.Close()
	connC := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, connC)
	assert.Equal(t, "one", readLine(connC))
	assert.Equal(t, "two", readLine(connC))
	assert.Equal(t, "three", readLine(connC))

	_, err = pw.Write([]byte("four\n"))
	assert.NoError(t, err)
	assert.Equal(t, "four", readLine(connC))
}

func TestExecSessionCommandInjection(t *testing.T) {
	_, rt, _, ts := testServer(t)

	client, remote := net.Pipe()
	rt.mu.Lock()
	rt.attach = &runtime.HijackedResponse{Conn: client, Reader: bufio.NewReader(client)}
	rt.mu.Unlock()

	conn := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, conn)

	wsSend(t, conn, frame{Event: "cmd", Command: "ls -la\r\n"})

	assert.NoError(t, remote.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 64)
	n, err := remote.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "ls -la\n", string(buf[:n]), "line endings are normalized to a single newline")
}

func TestExecSessionPowerEvents(t *testing.T) {
	_, rt, _, ts := testServer(t)
	conn := wsDial(t, ts, "/exec/cid-1")
	wsAuth(t, conn)

	wsSend(t, conn, frame{Event: "power:start"})

	assert.Eventually(t, func() bool {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return len(rt.started) == 1 && rt.started[0] == "cid-1"
	}, eventuallyTimeout, eventuallyTick)
}

func TestStatsSessionQuotaAutoStop(t *testing.T) {
	s, rt, st, ts := testServer(t)

	assert.NoError(t, st.Update("vol-1", store.Record{State: store.StateReady, ContainerID: "cid-1", DiskLimit: 1}))
	rt.setRunning("cid-1", true)

	volume := filepath.Join(s.Config.VolumesPath(), "vol-1")
	assert.NoError(t, os.MkdirAll(volume, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(volume, "fill.bin"), make([]byte, 2<<20), 0o644))

	conn := wsDial(t, ts, "/stats/cid-1/vol-1")
	wsAuth(t, conn)

	readSample := func() map[string]any {
		for {
			msg, err := wsRead(t, conn)
			assert.NoError(t, err)
			var sample map[string]any
			if json.Unmarshal([]byte(msg), &sample) == nil {
				return sample
			}
		}
	}

	sample := readSample()
	assert.Equal(t, true, sample["storageExceeded"])
	assert.EqualValues(t, 2, sample["volumeSizeMiB"])
	assert.EqualValues(t, 1, sample["diskLimitMiB"])

	assert.Eventually(t, func() bool {
		return rt.stopCount("cid-1") == 1
	}, eventuallyTimeout, eventuallyTick)

	// even with the container running again, the latch holds for the
	// session's lifetime
	rt.setRunning("cid-1", true)
	readSample()
	readSample()
	assert.Equal(t, 1, rt.stopCount("cid-1"))
}

func TestStatsSessionQuotaStopRetries(t *testing.T) {
	s, rt, st, ts := testServer(t)

	assert.NoError(t, st.Update("vol-1", store.Record{State: store.StateReady, ContainerID: "cid-1", DiskLimit: 1}))
	rt.setRunning("cid-1", true)
	rt.mu.Lock()
	rt.stopErr = io.ErrClosedPipe
	rt.mu.Unlock()

	volume := filepath.Join(s.Config.VolumesPath(), "vol-1")
	assert.NoError(t, os.MkdirAll(volume, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(volume, "fill.bin"), make([]byte, 2<<20), 0o644))

	conn := wsDial(t, ts, "/stats/cid-1/vol-1")
	wsAuth(t, conn)

	// a failed stop must not latch; the next tick tries again
	assert.Eventually(t, func() bool {
		return rt.stopCount("cid-1") >= 2
	}, eventuallyTimeout, eventuallyTick)

	rt.mu.Lock()
	rt.stopErr = nil
	rt.mu.Unlock()

	assert.Eventually(t, func() bool {
		return !rt.isRunning("cid-1")
	}, eventuallyTimeout, eventuallyTick)

	// only once the stop lands does the latch hold
	stops := rt.stopCount("cid-1")
	rt.setRunning("cid-1", true)
	assert.Never(t, func() bool {
		return rt.stopCount("cid-1") > stops
	}, 2500*time.Millisecond, 100*time.Millisecond)
}

func TestStatsSessionSampleFailure(t *testing.T) {
	_, rt, _, ts := testServer(t)
	rt.mu.Lock()
	rt.statsErr = io.ErrUnexpectedEOF
	rt.mu.Unlock()

	conn := wsDial(t, ts, "/stats/cid-1/vol-1")
	wsAuth(t, conn)

	// failure frames keep coming; the timer survives a bad sample
	for i := 0; i < 2; i++ {
		msg, err := wsRead(t, conn)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"error":"Failed to fetch stats"}`, msg)
	}
}

func TestLogBuffers(t *testing.T) {
	buffers := newLogBuffers(3)

	var a []string
	idA, fresh := buffers.subscribe("abc", func(line string) { a = append(a, line) })
	assert.True(t, fresh)
	assert.Empty(t, a)

	// publishes without any subscriber go nowhere
	buffers.publish("other", "dropped")
	var other []string
	idOther, fresh := buffers.subscribe("other", func(line string) { other = append(other, line) })
	assert.True(t, fresh)
	assert.Empty(t, other)
	buffers.unsubscribe("other", idOther)

	for _, line := range []string{"1", "2", "3", "4", "5"} {
		buffers.publish("abc", line)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, a, "a live subscriber sees every line")

	// a late subscriber is replayed the bounded history before anything else
	var b []string
	idB, fresh := buffers.subscribe("abc", func(line string) { b = append(b, line) })
	assert.False(t, fresh)
	assert.Equal(t, []string{"3", "4", "5"}, b, "oldest entries are evicted first")

	buffers.publish("abc", "6")
	assert.Equal(t, []string{"3", "4", "5", "6"}, b)

	var stopped bool
	buffers.setCancel("abc", func() { stopped = true })
	buffers.unsubscribe("abc", idA)
	assert.False(t, stopped, "a remaining subscriber keeps the stream alive")
	buffers.unsubscribe("abc", idB)
	assert.True(t, stopped, "the last detach stops the stream")

	_, fresh = buffers.subscribe("abc", func(string) {})
	assert.True(t, fresh, "the last detach drops the buffer")
}
