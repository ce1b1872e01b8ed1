package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// lengthPrefixSize is the size of the big-endian frame length on streams.
const lengthPrefixSize = 2

// MaxStreamFrame is the largest frame a uint16 length prefix can describe.
const MaxStreamFrame = math.MaxUint16

// ReadFrame reads one length-prefixed frame from r into buf.
//
// The returned slice aliases buf and is only valid until the next call.
// A zero length or a length larger than buf returns ErrFrameDesync: the
// stream position is no longer trustworthy and the connection must be
// closed. I/O errors (including io.EOF before the first byte) are
// returned unwrapped so callers can tell a clean close from a failure.
//
// Parameters:
//   - r: Stream to read from
//   - buf: Scratch buffer; its length bounds the frame size
//
// Returns:
//   - []byte: The frame body, without the length prefix
//   - error: ErrFrameDesync, io.EOF, io.ErrUnexpectedEOF or a transport error
func ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := int(binary.BigEndian.Uint16(prefix[:]))
	if n == 0 {
		return nil, fmt.Errorf("%w: zero length prefix", ErrFrameDesync)
	}
	if n > len(buf) {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrFrameDesync, n, len(buf))
	}

	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf[:n], nil
}

// WriteFrame writes frame to w preceded by its uint16 length.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) == 0 || len(frame) > MaxStreamFrame {
		return fmt.Errorf("%w: frame of %d bytes cannot be length-prefixed", ErrEncodingFailed, len(frame))
	}

	out := make([]byte, lengthPrefixSize+len(frame))
	binary.BigEndian.PutUint16(out, uint16(len(frame)))
	copy(out[lengthPrefixSize:], frame)

	_, err := w.Write(out)
	return err
}
