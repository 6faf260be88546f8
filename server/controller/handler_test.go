package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_mini_ftp/auth"
	"go_mini_ftp/fileio"
	"go_mini_ftp/networking"
	"go_mini_ftp/networking/replycode"
)

type recorder struct {
	mu        sync.Mutex
	started   int
	ended     []string
	logins    []bool
	verbs     []string
	transfers []string
	bytes     int64
}

func (r *recorder) SessionStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) SessionEnded(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, outcome)
}

func (r *recorder) RecordAuthentication(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, success)
}

func (r *recorder) RecordCommand(verb string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbs = append(r.verbs, verb)
}

func (r *recorder) RecordTransfer(outcome string, bytes int64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, outcome)
	r.bytes += bytes
}

// harness drives one session over an in-memory pipe
type harness struct {
	t       *testing.T
	conn    net.Conn
	reader  *bufio.Reader
	done    chan struct{}
	metrics *recorder
}

func newTestServer(t *testing.T, source fileio.Source, idle time.Duration) (*Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	gate := auth.NewGate(auth.MemoryStore{"alice": "secret"}, zerolog.Nop())
	srv := NewServer(gate, source, Options{
		IdleTimeout: idle,
		Metrics:     rec,
		Logger:      zerolog.Nop(),
	})
	return srv, rec
}

func newRootSource(t *testing.T) (*fileio.RootSource, string) {
	t.Helper()
	dir := t.TempDir()
	src, err := fileio.NewRootSource(dir)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src, dir
}

func startSession(t *testing.T, source fileio.Source, idle time.Duration) *harness {
	t.Helper()
	srv, rec := newTestServer(t, source, idle)

	client, server := net.Pipe()
	h := &harness{
		t:       t,
		conn:    client,
		reader:  bufio.NewReader(client),
		done:    make(chan struct{}),
		metrics: rec,
	}
	go func() {
		defer close(h.done)
		srv.ServeConn(context.Background(), server)
	}()
	t.Cleanup(func() {
		client.Close()
		<-h.done
	})
	return h
}

func (h *harness) send(line string) {
	h.t.Helper()
	require.NoError(h.t, h.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := h.conn.Write([]byte(line + "\r\n"))
	require.NoError(h.t, err)
}

func (h *harness) expect(code int) networking.Reply {
	h.t.Helper()
	require.NoError(h.t, h.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply, err := networking.ReadReply(h.reader)
	require.NoError(h.t, err)
	require.Equal(h.t, code, reply.Code, reply.String())
	return reply
}

func (h *harness) payload(n int64) []byte {
	h.t.Helper()
	require.NoError(h.t, h.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(h.reader, buf)
	require.NoError(h.t, err)
	return buf
}

// expectClosed asserts the server hung up without sending anything more
func (h *harness) expectClosed() {
	h.t.Helper()
	require.NoError(h.t, h.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := h.reader.ReadByte()
	require.ErrorIs(h.t, err, io.EOF)
	h.wait()
}

func (h *harness) wait() {
	h.t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("session did not end")
	}
}

func (h *harness) login() {
	h.t.Helper()
	h.expect(replycode.SERVICE_READY)
	h.send("USER alice")
	h.expect(replycode.PASS_REQUIRED)
	h.send("PASS secret")
	h.expect(replycode.LOGGED_IN)
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestGreetingAndLogin(t *testing.T) {
	src, _ := newRootSource(t)
	h := startSession(t, src, time.Second)

	reply := h.expect(replycode.SERVICE_READY)
	assert.Equal(t, "srvFtp version 1.0", reply.Text)

	h.send("USER alice")
	reply = h.expect(replycode.PASS_REQUIRED)
	assert.Equal(t, "Password required for alice", reply.Text)

	h.send("PASS secret")
	reply = h.expect(replycode.LOGGED_IN)
	assert.Equal(t, "User alice logged in", reply.Text)

	h.send("QUIT")
	h.expect(replycode.GOODBYE)
	h.expectClosed()

	assert.Equal(t, []bool{true}, h.metrics.logins)
	assert.Equal(t, []string{OUTCOME_QUIT}, h.metrics.ended)
	assert.Equal(t, []string{"USER", "PASS", "QUIT"}, h.metrics.verbs)
}

func TestBadPasswordIsRejectedAndClosed(t *testing.T) {
	src, _ := newRootSource(t)
	h := startSession(t, src, time.Second)

	h.expect(replycode.SERVICE_READY)
	h.send("USER alice")
	h.expect(replycode.PASS_REQUIRED)
	h.send("PASS wrong")
	reply := h.expect(replycode.LOGIN_INCORRECT)
	assert.Equal(t, "Login incorrect", reply.Text)
	h.expectClosed()

	assert.Equal(t, []bool{false}, h.metrics.logins)
	assert.Equal(t, []string{OUTCOME_REJECTED}, h.metrics.ended)
}

func TestUnknownUserIsRejected(t *testing.T) {
	src, _ := newRootSource(t)
	h := startSession(t, src, time.Second)

	h.expect(replycode.SERVICE_READY)
	h.send("USER mallory")
	h.expect(replycode.PASS_REQUIRED)
	h.send("PASS secret")
	h.expect(replycode.LOGIN_INCORRECT)
	h.expectClosed()
}

func TestOutOfOrderHandshakeClosesSilently(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		wait  []int
	}{
		{name: "PASS before USER", lines: []string{"PASS secret"}},
		{name: "RETR before login", lines: []string{"RETR a.txt"}},
		{name: "USER twice", lines: []string{"USER alice", "USER alice"}, wait: []int{replycode.PASS_REQUIRED}},
		{name: "malformed verb", lines: []string{"US alice"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src, _ := newRootSource(t)
			h := startSession(t, src, time.Second)

			h.expect(replycode.SERVICE_READY)
			for i, line := range tc.lines {
				h.send(line)
				if i < len(tc.wait) {
					h.expect(tc.wait[i])
				}
			}
			h.expectClosed()
			assert.Equal(t, []string{OUTCOME_INVALID}, h.metrics.ended)
			assert.Empty(t, h.metrics.logins)
		})
	}
}

func TestRetrieveStreamsExactBytes(t *testing.T) {
	src, dir := newRootSource(t)
	data := randomBytes(t, 1300)
	writeFile(t, dir, "a.bin", data)

	h := startSession(t, src, time.Second)
	h.login()

	// Repeating a retrieval yields the same bytes.
	for range 2 {
		h.send("RETR a.bin")
		reply := h.expect(replycode.FILE_SIZE)
		ann, err := networking.ParseAnnouncement(reply)
		require.NoError(t, err)
		assert.Equal(t, networking.Announcement{Path: "a.bin", Size: 1300}, ann)

		assert.Equal(t, data, h.payload(ann.Size))
		h.expect(replycode.TRANSFER_COMPLETE)
	}

	h.send("QUIT")
	h.expect(replycode.GOODBYE)
	h.expectClosed()

	assert.Equal(t, []string{TRANSFER_COMPLETE, TRANSFER_COMPLETE}, h.metrics.transfers)
	assert.EqualValues(t, 2600, h.metrics.bytes)
}

func TestRetrieveEmptyAndFrameSizedFiles(t *testing.T) {
	src, dir := newRootSource(t)
	writeFile(t, dir, "empty", nil)
	frame := randomBytes(t, 1024)
	writeFile(t, dir, "docs/frame.bin", frame)

	h := startSession(t, src, time.Second)
	h.login()

	h.send("RETR empty")
	reply := h.expect(replycode.FILE_SIZE)
	assert.Equal(t, "File empty size 0 bytes", reply.Text)
	h.expect(replycode.TRANSFER_COMPLETE)

	h.send("RETR docs/frame.bin")
	h.expect(replycode.FILE_SIZE)
	assert.Equal(t, frame, h.payload(1024))
	h.expect(replycode.TRANSFER_COMPLETE)
}

func TestRetrieveMissingFileKeepsSession(t *testing.T) {
	src, dir := newRootSource(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	h := startSession(t, src, time.Second)
	h.login()

	for _, path := range []string{"missing.txt", "sub", "../../etc/passwd"} {
		h.send("RETR " + path)
		reply := h.expect(replycode.NO_SUCH_FILE)
		assert.Equal(t, path+": no such file or directory", reply.Text)
	}

	h.send("QUIT")
	h.expect(replycode.GOODBYE)
	h.expectClosed()
	assert.Equal(t, []string{TRANSFER_NOT_FOUND, TRANSFER_NOT_FOUND, TRANSFER_NOT_FOUND}, h.metrics.transfers)
}

func TestRetrieveIsContainedInRoot(t *testing.T) {
	outer := t.TempDir()
	writeFile(t, outer, "secret.txt", []byte("top secret"))
	root := filepath.Join(outer, "root")
	writeFile(t, root, "public.txt", []byte("hello"))

	src, err := fileio.NewRootSource(root)
	require.NoError(t, err)
	defer src.Close()

	h := startSession(t, src, time.Second)
	h.login()

	// Dot-dot segments resolve against the root, never above it.
	h.send("RETR ../public.txt")
	h.expect(replycode.FILE_SIZE)
	assert.Equal(t, []byte("hello"), h.payload(5))
	h.expect(replycode.TRANSFER_COMPLETE)

	h.send("RETR ../secret.txt")
	h.expect(replycode.NO_SUCH_FILE)
}

func TestRetrieveArchiveFallback(t *testing.T) {
	src, dir := newRootSource(t)
	src.Archives = true
	data := bytes.Repeat([]byte("compressible text "), 100)

	var packed bytes.Buffer
	zw := fileio.CompressingWriter(&packed)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	writeFile(t, dir, "notes.txt.lz4", packed.Bytes())

	h := startSession(t, src, time.Second)
	h.login()

	h.send("RETR notes.txt")
	reply := h.expect(replycode.FILE_SIZE)
	ann, err := networking.ParseAnnouncement(reply)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), ann.Size)
	assert.Equal(t, data, h.payload(ann.Size))
	h.expect(replycode.TRANSFER_COMPLETE)
}

type failingSource struct {
	data []byte
}

type failingResource struct {
	io.Reader
	size int64
}

func (f *failingResource) Close() error { return nil }
func (f *failingResource) Size() int64  { return f.size }

// Open serves one frame of data, then fails the read.
func (f failingSource) Open(path string) (fileio.Resource, error) {
	if path != "flaky.bin" {
		return nil, fileio.ErrNotFound
	}
	return &failingResource{
		Reader: io.MultiReader(bytes.NewReader(f.data[:512]), iotest.ErrReader(errors.New("input/output error"))),
		size:   int64(len(f.data)),
	}, nil
}

func TestRetrieveReadFailureSkipsCompletion(t *testing.T) {
	data := randomBytes(t, 2048)
	h := startSession(t, failingSource{data: data}, time.Second)
	h.login()

	h.send("RETR flaky.bin")
	reply := h.expect(replycode.FILE_SIZE)
	assert.Equal(t, "File flaky.bin size 2048 bytes", reply.Text)
	assert.Equal(t, data[:512], h.payload(512))

	// No 226 follows; the next reply belongs to QUIT.
	h.send("QUIT")
	h.expect(replycode.GOODBYE)
	h.expectClosed()
	assert.Equal(t, []string{TRANSFER_READ_ERROR}, h.metrics.transfers)
}

// shortSource announces more bytes than its resource holds.
type shortSource struct {
	data     []byte
	announce int64
}

func (f shortSource) Open(path string) (fileio.Resource, error) {
	return &failingResource{Reader: bytes.NewReader(f.data), size: f.announce}, nil
}

func TestRetrieveShortResourceEndsSession(t *testing.T) {
	data := randomBytes(t, 100)
	h := startSession(t, shortSource{data: data, announce: 1000}, time.Second)
	h.login()

	h.send("RETR short.bin")
	reply := h.expect(replycode.FILE_SIZE)
	assert.Equal(t, "File short.bin size 1000 bytes", reply.Text)
	assert.Equal(t, data, h.payload(100))

	// No 226 follows the short payload.
	h.expectClosed()
	assert.Equal(t, []string{TRANSFER_READ_ERROR}, h.metrics.transfers)
	assert.EqualValues(t, 100, h.metrics.bytes)
	assert.Equal(t, []string{OUTCOME_TRANSPORT}, h.metrics.ended)
}

func TestRetrieveWriteFailureEndsSession(t *testing.T) {
	src, dir := newRootSource(t)
	writeFile(t, dir, "big.bin", randomBytes(t, 2048))

	h := startSession(t, src, time.Second)
	h.login()

	h.send("RETR big.bin")
	h.expect(replycode.FILE_SIZE)

	// Hang up before any payload is read.
	h.conn.Close()
	h.wait()
	assert.Equal(t, []string{TRANSFER_WRITE_ERROR}, h.metrics.transfers)
	assert.Zero(t, h.metrics.bytes)
	assert.Equal(t, []string{OUTCOME_TRANSPORT}, h.metrics.ended)
}

func TestUnknownCommandEndsSession(t *testing.T) {
	for _, line := range []string{"LIST", "retr a.txt", "NOOP", "STOR a.txt"} {
		t.Run(line, func(t *testing.T) {
			src, _ := newRootSource(t)
			h := startSession(t, src, time.Second)
			h.login()

			h.send(line)
			h.expectClosed()
			assert.Equal(t, []string{OUTCOME_INVALID}, h.metrics.ended)
		})
	}
}

func TestPipelinedCommands(t *testing.T) {
	src, dir := newRootSource(t)
	writeFile(t, dir, "a.txt", []byte("abc"))

	h := startSession(t, src, time.Second)
	h.expect(replycode.SERVICE_READY)

	require.NoError(t, h.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	go func() {
		_, _ = h.conn.Write([]byte("USER alice\r\nPASS secret\r\nRETR a.txt\r\nQUIT\r\n"))
	}()

	h.expect(replycode.PASS_REQUIRED)
	h.expect(replycode.LOGGED_IN)
	h.expect(replycode.FILE_SIZE)
	assert.Equal(t, []byte("abc"), h.payload(3))
	h.expect(replycode.TRANSFER_COMPLETE)
	h.expect(replycode.GOODBYE)
	h.expectClosed()
}

func TestClientHangupEndsSession(t *testing.T) {
	src, _ := newRootSource(t)
	h := startSession(t, src, time.Second)
	h.login()

	h.conn.Close()
	h.wait()
	assert.Equal(t, []string{OUTCOME_CLOSED}, h.metrics.ended)
}

func TestIdleTimeoutEndsSession(t *testing.T) {
	src, _ := newRootSource(t)
	h := startSession(t, src, 100*time.Millisecond)

	h.expect(replycode.SERVICE_READY)
	h.expectClosed()
	assert.Equal(t, []string{OUTCOME_TRANSPORT}, h.metrics.ended)
}

func TestCancelClosesSession(t *testing.T) {
	src, _ := newRootSource(t)
	srv, _ := newTestServer(t, src, 0)

	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, server)
	}()

	r := bufio.NewReader(client)
	_, err := networking.ReadReply(r)
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session ignored cancellation")
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OUTCOME_QUIT, outcomeOf(nil))
	assert.Equal(t, OUTCOME_REJECTED, outcomeOf(errors.Join(auth.ErrAuthenticationRejected, errors.New("write"))))
	assert.Equal(t, OUTCOME_CLOSED, outcomeOf(networking.ErrConnectionClosed))
	assert.Equal(t, OUTCOME_INVALID, outcomeOf(&networking.UnexpectedCommandError{Expected: "USER", Got: "PASS"}))
	assert.Equal(t, OUTCOME_TRANSPORT, outcomeOf(&networking.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}))
}
