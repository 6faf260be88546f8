package networking

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go_mini_ftp/constants"
	"go_mini_ftp/networking/replycode"
)

// Reply is a status code plus human readable text
type Reply struct {
	Code int
	Text string
}

func (r Reply) String() string {
	return strconv.Itoa(r.Code) + " " + r.Text
}

// replyFormats holds the text of every reply the server may send.
var replyFormats = map[int]string{
	replycode.SERVICE_READY:     "%s version %s",
	replycode.PASS_REQUIRED:     "Password required for %s",
	replycode.LOGGED_IN:         "User %s logged in",
	replycode.LOGIN_INCORRECT:   "Login incorrect",
	replycode.NO_SUCH_FILE:      "%s: no such file or directory",
	replycode.FILE_SIZE:         "File %s size %d bytes",
	replycode.TRANSFER_COMPLETE: "Transfer complete",
	replycode.GOODBYE:           "Goodbye",
}

// FormatReply renders code and its substituted text as one wire frame
func FormatReply(code int, args ...any) ([]byte, error) {
	format, ok := replyFormats[code]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownReply, code)
	}

	msg := strconv.Itoa(code) + " " + fmt.Sprintf(format, args...) + "\r\n"
	if len(msg) > constants.FRAME_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrReplyTooLong, len(msg))
	}
	return []byte(msg), nil
}

// WriteReply formats a reply and writes exactly its bytes to w
func WriteReply(w io.Writer, code int, args ...any) error {
	msg, err := FormatReply(code, args...)
	if err != nil {
		return err
	}
	return writeFrame(w, msg)
}

// writeFrame treats any failed or short write as a transport failure.
func writeFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n < len(frame) {
		return &TransportError{Op: "write", Err: io.ErrShortWrite}
	}
	return nil
}

// ReadReply reads one reply line as sent by WriteReply
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line == "" {
			return Reply{}, ErrConnectionClosed
		}
		if !errors.Is(err, io.EOF) {
			return Reply{}, &TransportError{Op: "read", Err: err}
		}
	}
	if len(line) > constants.FRAME_SIZE {
		return Reply{}, fmt.Errorf("%w: %d bytes", ErrMalformedReply, len(line))
	}

	line = strings.TrimRight(line, "\r\n")
	if len(line) < 4 || line[3] != ' ' {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	return Reply{Code: code, Text: line[4:]}, nil
}
