package networking

import (
	"fmt"
	"io"

	"go_mini_ftp/networking/replycode"
)

// Announcement pairs a RETR path with the byte length about to follow
type Announcement struct {
	Path string
	Size int64
}

// Write sends the announcement as a 299 reply
func (a Announcement) Write(w io.Writer) error {
	return WriteReply(w, replycode.FILE_SIZE, a.Path, a.Size)
}

// ParseAnnouncement extracts path and size from a 299 reply
func ParseAnnouncement(r Reply) (Announcement, error) {
	if r.Code != replycode.FILE_SIZE {
		return Announcement{}, fmt.Errorf("%w: expected %d, got %d", ErrMalformedReply, replycode.FILE_SIZE, r.Code)
	}
	var a Announcement
	if _, err := fmt.Sscanf(r.Text, "File %s size %d bytes", &a.Path, &a.Size); err != nil {
		return Announcement{}, fmt.Errorf("%w: %q: %v", ErrMalformedReply, r.Text, err)
	}
	if a.Size < 0 {
		return Announcement{}, fmt.Errorf("%w: negative size %d", ErrMalformedReply, a.Size)
	}
	return a, nil
}
