package runtime

import (
	"encoding/binary"
	"io"

	"github.com/go-errors/errors"
)

// Multiplexed engine streams interleave stdout and stderr frames, each
// prefixed with an 8 byte header: one byte stream type, three bytes of
// padding, and a big-endian 4 byte payload size.
const (
	demuxHeaderLen    = 8
	demuxSizeOffset   = 4
	maxDemuxFrameSize = 16 * 1024 * 1024
)

// Demux copies a multiplexed stream to w with the framing stripped,
// merging stdout and stderr in arrival order. It returns the number of
// payload bytes written and stops cleanly at EOF on a frame boundary.
func Demux(w io.Writer, src io.Reader) (int64, error) {
	var written int64
	header := make([]byte, demuxHeaderLen)

	for {
		if _, err := io.ReadFull(src, header); err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}

		size := int64(binary.BigEndian.Uint32(header[demuxSizeOffset:]))
		if size > maxDemuxFrameSize {
			return written, errors.Errorf("frame of %d bytes exceeds limit", size)
		}

		n, err := io.CopyN(w, src, size)
		written += n
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return written, err
		}
	}
}

// DemuxReader turns a multiplexed stream into a plain reader. Closing
// the returned reader releases the pump goroutine; the source is still
// the caller's to close.
func DemuxReader(src io.Reader) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := Demux(pw, src)
		pw.CloseWithError(err)
	}()
	return pr
}
