package networking

import (
	"io"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// DeadlineConn arms a fresh deadline before every read and write so a
// stalled peer surfaces as a timeout instead of blocking forever.
type DeadlineConn struct {
	net.Conn
	Timeout time.Duration
}

func (c *DeadlineConn) Read(p []byte) (int, error) {
	if c.Timeout > 0 {
		// A failed arm means the conn is already closed; Read reports how.
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
	return c.Conn.Read(p)
}

func (c *DeadlineConn) Write(p []byte) (int, error) {
	if c.Timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Timeout))
	}
	return c.Conn.Write(p)
}

// WriteChunk writes one raw payload chunk
func WriteChunk(w io.Writer, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	return writeFrame(w, chunk)
}

// SetDSCP marks packets of a TCP connection with the given DSCP code point.
// Non-TCP connections and a zero code point are left untouched.
func SetDSCP(conn net.Conn, dscp int) error {
	if dscp <= 0 {
		return nil
	}
	if _, ok := conn.(*net.TCPConn); !ok {
		return nil
	}
	// TOS carries DSCP in its upper six bits.
	return ipv4.NewConn(conn).SetTOS(dscp << 2)
}
