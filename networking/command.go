package networking

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"go_mini_ftp/constants"
)

const (
	USER = "USER"
	PASS = "PASS"
	RETR = "RETR"
	QUIT = "QUIT"
)

// Command is one parsed line of client input
type Command struct {
	Verb string
	Arg  string
}

func (c Command) String() string {
	if c.Arg == "" {
		return c.Verb
	}
	return c.Verb + " " + c.Arg
}

// Decoder frames inbound bytes into commands, one line at a time
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder wraps the transport with a reader bounded to one frame
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReaderSize(r, constants.FRAME_SIZE)}
}

// ReadCommand reads and parses the next command line
func (d *Decoder) ReadCommand() (Command, error) {
	line, err := d.reader.ReadSlice('\n')
	if err != nil {
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return Command{}, fmt.Errorf("%w: line exceeds %d bytes", ErrInvalidCommand, constants.FRAME_SIZE)
		case errors.Is(err, io.EOF):
			if len(line) == 0 {
				return Command{}, ErrConnectionClosed
			}
			// Peer closed after an unterminated line. Parse what arrived.
		default:
			return Command{}, &TransportError{Op: "read", Err: err}
		}
	}
	return ParseCommand(string(line))
}

// Expect reads the next command and requires its verb to be verb
func (d *Decoder) Expect(verb string) (Command, error) {
	cmd, err := d.ReadCommand()
	if err != nil {
		return cmd, err
	}
	if cmd.Verb != verb {
		return cmd, &UnexpectedCommandError{Expected: verb, Got: cmd.Verb}
	}
	return cmd, nil
}

// ParseCommand splits a raw line into verb and first argument. Anything
// after the first CR or LF is discarded and only one argument token is kept.
func ParseCommand(line string) (Command, error) {
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	cmd := Command{Verb: fields[0]}
	if len(cmd.Verb) != constants.CMD_LEN {
		return Command{}, fmt.Errorf("%w: verb %q", ErrInvalidCommand, cmd.Verb)
	}

	if len(fields) > 1 {
		if len(fields[1]) > constants.PARAM_SIZE {
			return Command{}, fmt.Errorf("%w: argument longer than %d bytes", ErrInvalidCommand, constants.PARAM_SIZE)
		}
		cmd.Arg = fields[1]
	}

	return cmd, nil
}
