package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boz/go-throttle"
	"github.com/fatih/color"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/utils"
)

const (
	sessionKindExec  = "exec"
	sessionKindStats = "stats"

	// sendQueueCap bounds the outbound frame queue; under congestion the
	// oldest frames are dropped first, since the log buffer still holds them
	sendQueueCap = 256

	flushPeriod   = 50 * time.Millisecond
	logChunkSize  = 4096
	closeDeadline = 5 * time.Second
)

// frame is one inbound channel message.
type frame struct {
	Event   string   `json:"event"`
	Args    []string `json:"args,omitempty"`
	Command string   `json:"command,omitempty"`
}

// session is one duplex connection: auth state, routing, its outbound
// queue and whatever stream or timer the session type holds.
type session struct {
	log  *logrus.Entry
	srv  *Server
	conn *websocket.Conn

	kind        string
	containerID string
	volumeID    string

	ctx    context.Context
	cancel context.CancelFunc

	authed     bool
	subscribed bool
	sinkID     uint64
	attach     *runtime.HijackedResponse

	mu      deadlock.Mutex
	pending [][]byte
	closed  bool

	writeMu deadlock.Mutex
	flusher throttle.ThrottleDriver
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.Log.WithError(err).Debug("channel upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		log:         s.Log.WithField("session", vars["kind"]),
		srv:         s,
		conn:        conn,
		kind:        vars["kind"],
		containerID: vars["containerId"],
		volumeID:    vars["volumeId"],
		ctx:         ctx,
		cancel:      cancel,
	}
	sess.flusher = throttle.ThrottleFunc(flushPeriod, true, sess.flush)

	sess.run()
}

func (s *session) run() {
	defer s.cleanup()

	if s.containerID == "" {
		s.closeWith(websocket.ClosePolicyViolation, "Container ID not specified")
		return
	}
	if s.kind != sessionKindExec && s.kind != sessionKindStats {
		s.closeWith(websocket.CloseProtocolError, "Unsupported session kind")
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.queue([]byte("Invalid JSON"))
			continue
		}

		if !s.authed {
			if s.handshake(f) {
				continue
			}
			return
		}
		s.dispatch(f)
	}
}

// handshake consumes the first frame of an unauthenticated session.
// Only a valid auth frame keeps the connection alive.
func (s *session) handshake(f frame) bool {
	if f.Event == "auth" && len(f.Args) > 0 && s.srv.secretMatches(f.Args[0]) {
		s.authed = true
		s.queue(banner())
		s.begin()
		return true
	}

	if f.Event == "auth" {
		s.queue([]byte("Authentication failed"))
	}
	s.closeWith(websocket.ClosePolicyViolation, "Authentication failed")
	return false
}

// begin launches the session type's background work once authenticated.
func (s *session) begin() {
	switch s.kind {
	case sessionKindExec:
		s.beginExec()
	case sessionKindStats:
		go s.runStats(s.ctx)
	}
}

func (s *session) dispatch(f frame) {
	switch {
	case f.Event == "cmd":
		s.command(f.Command)
	case strings.HasPrefix(f.Event, "power:"):
		s.power(strings.TrimPrefix(f.Event, "power:"))
	default:
		s.queue([]byte("Unsupported event"))
	}
}

// command injects a line into the container's primary TTY through a
// lazily-opened attach connection.
func (s *session) command(cmd string) {
	// a pasted command may carry its own line ending
	cmd = strings.TrimSuffix(utils.NormalizeLinefeeds(cmd), "\n")
	if cmd == "" {
		return
	}

	if s.attach == nil {
		attach, err := s.srv.Runtime.ContainerAttach(s.ctx, s.containerID, runtime.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			s.log.WithError(err).Warn("attach for command injection failed")
			s.queue([]byte("Failed to attach to container"))
			return
		}
		s.attach = attach
		// output already reaches the client through the log stream
		go func() { _, _ = io.Copy(io.Discard, attach.Reader) }()
	}

	if _, err := s.attach.Conn.Write([]byte(cmd + "\n")); err != nil {
		s.log.WithError(err).Warn("command write failed")
		s.queue([]byte("Failed to send command to container"))
		s.attach.Close()
		s.attach = nil
	}
}

func (s *session) power(action string) {
	var err error
	switch action {
	case "start":
		err = s.srv.Runtime.StartContainer(s.ctx, s.containerID)
	case "stop":
		err = s.srv.Runtime.StopContainer(s.ctx, s.containerID, nil)
	case "restart":
		err = s.srv.Runtime.RestartContainer(s.ctx, s.containerID)
	default:
		s.queue([]byte("Unsupported event"))
		return
	}
	if err != nil {
		s.log.WithError(err).Warnf("power action %s failed", action)
		s.queue([]byte("Failed to " + action + " container"))
	}
}

// beginExec subscribes the session to the container's shared log
// buffer; history is replayed before any live line. The first session
// on a container also starts the single follow stream that writes the
// buffer, so each line is buffered exactly once no matter how many
// sessions are attached.
func (s *session) beginExec() {
	sinkID, fresh := s.srv.buffers.subscribe(s.containerID, func(line string) {
		s.queue(formatLogLine(line))
	})
	s.sinkID = sinkID
	s.subscribed = true

	if !fresh {
		return
	}
	if err := s.srv.startLogFollow(s.containerID); err != nil {
		s.log.WithError(err).Warn("log stream failed")
		s.queue([]byte("Failed to attach to container logs"))
	}
}

// startLogFollow opens the one follow stream behind a container's log
// buffer, asking for the full history. It is the buffer's only writer
// and runs until the last subscriber detaches.
func (s *Server) startLogFollow(containerID string) error {
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := s.Runtime.ContainerLogs(ctx, containerID, runtime.LogsOptions{
		Follow: true,
		Stdout: true,
		Stderr: true,
		Tail:   "all",
	})
	if err != nil {
		cancel()
		return err
	}
	s.buffers.setCancel(containerID, cancel)

	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	go s.followLogs(ctx, containerID, stream)
	return nil
}

func (s *Server) followLogs(ctx context.Context, containerID string, stream io.ReadCloser) {
	reader := io.Reader(stream)
	if !s.containerHasTTY(ctx, containerID) {
		demuxed := runtime.DemuxReader(stream)
		defer demuxed.Close()
		reader = demuxed
	}

	chunk := make([]byte, logChunkSize)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			for _, line := range utils.SplitLines(string(chunk[:n])) {
				if line == "" {
					continue
				}
				s.buffers.publish(containerID, line)
			}
		}
		if err != nil {
			return
		}
	}
}

// containerHasTTY reports whether the log stream is raw. Our own
// deployments always allocate a TTY; when inspect fails we assume one.
func (s *Server) containerHasTTY(ctx context.Context, containerID string) bool {
	details, err := s.Runtime.InspectContainer(ctx, containerID)
	if err != nil || details.Config == nil {
		return true
	}
	return details.Config.Tty
}

// queue appends an outbound frame, dropping the oldest beyond the cap,
// and schedules a flush.
func (s *session) queue(data []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.pending) >= sendQueueCap {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, data)
	s.mu.Unlock()

	s.flusher.Trigger()
}

// flush drains the queue onto the socket. Serialized by writeMu since
// both the throttle goroutine and closeWith call it.
func (s *session) flush() {
	s.mu.Lock()
	frames := s.pending
	s.pending = nil
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, data := range frames {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (s *session) closeWith(code int, reason string) {
	s.flush()
	message := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeDeadline))
}

func (s *session) cleanup() {
	s.cancel()
	s.flusher.Stop()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.attach != nil {
		s.attach.Close()
	}
	if s.subscribed {
		s.srv.buffers.unsubscribe(s.containerID, s.sinkID)
	}
	s.conn.Close()
}

func banner() []byte {
	c := color.New(color.FgGreen, color.Bold)
	c.EnableColor()
	return []byte(c.Sprint("[kswings] connected!"))
}

func formatLogLine(line string) []byte {
	return []byte("\r\n\u001b[34m[docker] \u001b[0m" + line + "\r\n")
}
