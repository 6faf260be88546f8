package comms

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go_mini_ftp/networking"
	"go_mini_ftp/networking/replycode"
)

var (
	ErrLoginIncorrect = errors.New("comms: login incorrect")
	ErrNoSuchFile     = errors.New("comms: no such file or directory")
)

// ReplyError is a reply other than the one the exchange called for
type ReplyError struct {
	Expected int
	Reply    networking.Reply
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("comms: expected %d reply, got %q", e.Expected, e.Reply.String())
}

// Client speaks the command protocol over one TCP connection
type Client struct {
	conn   net.Conn
	rw     *networking.DeadlineConn
	reader *bufio.Reader
}

// Dial opens TCP connection to target host address
func Dial(address string, dscp int, timeout time.Duration) (*Client, error) {
	dial := &net.Dialer{Timeout: timeout}
	conn, err := dial.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Commands are tiny; send them immediately.
		tcp.SetNoDelay(true)
	}
	// NOTE: On Windows by default it will not apply the value.
	if err := networking.SetDSCP(conn, dscp); err != nil {
		conn.Close()
		return nil, err
	}
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established connection
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	rw := &networking.DeadlineConn{Conn: conn, Timeout: timeout}
	return &Client{
		conn:   conn,
		rw:     rw,
		reader: bufio.NewReader(rw),
	}
}

// Greeting reads the service banner
func (c *Client) Greeting() (networking.Reply, error) {
	return c.expect(replycode.SERVICE_READY)
}

// Login performs the USER/PASS exchange. The server closes the
// connection after a rejected login.
func (c *Client) Login(user, password string) error {
	if err := c.send(networking.USER, user); err != nil {
		return err
	}
	if _, err := c.expect(replycode.PASS_REQUIRED); err != nil {
		return err
	}
	if err := c.send(networking.PASS, password); err != nil {
		return err
	}

	reply, err := c.readReply()
	if err != nil {
		return err
	}
	switch reply.Code {
	case replycode.LOGGED_IN:
		return nil
	case replycode.LOGIN_INCORRECT:
		return ErrLoginIncorrect
	default:
		return &ReplyError{Expected: replycode.LOGGED_IN, Reply: reply}
	}
}

// Retrieve requests path and copies its payload to w. It returns the
// number of bytes written. A server side read failure leaves no 226
// behind, which surfaces here as a ReplyError or a timeout.
func (c *Client) Retrieve(path string, w io.Writer) (int64, error) {
	if err := c.send(networking.RETR, path); err != nil {
		return 0, err
	}

	reply, err := c.readReply()
	if err != nil {
		return 0, err
	}
	if reply.Code == replycode.NO_SUCH_FILE {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchFile, path)
	}
	ann, err := networking.ParseAnnouncement(reply)
	if err != nil {
		return 0, err
	}

	n, err := io.CopyN(w, c.reader, ann.Size)
	if err != nil {
		return n, fmt.Errorf("payload ended after %d of %d bytes: %w", n, ann.Size, err)
	}

	if _, err := c.expect(replycode.TRANSFER_COMPLETE); err != nil {
		return n, err
	}
	return n, nil
}

// Quit says goodbye. The connection stays open until Close.
func (c *Client) Quit() error {
	if err := c.send(networking.QUIT, ""); err != nil {
		return err
	}
	_, err := c.expect(replycode.GOODBYE)
	return err
}

// Close drops the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(verb, arg string) error {
	line := networking.Command{Verb: verb, Arg: arg}.String() + "\r\n"
	n, err := c.rw.Write([]byte(line))
	if err != nil {
		return &networking.TransportError{Op: "write", Err: err}
	}
	if n < len(line) {
		return &networking.TransportError{Op: "write", Err: io.ErrShortWrite}
	}
	return nil
}

func (c *Client) readReply() (networking.Reply, error) {
	return networking.ReadReply(c.reader)
}

// expect reads one reply and requires its code
func (c *Client) expect(code int) (networking.Reply, error) {
	reply, err := c.readReply()
	if err != nil {
		return reply, err
	}
	if reply.Code != code {
		return reply, &ReplyError{Expected: code, Reply: reply}
	}
	return reply, nil
}
