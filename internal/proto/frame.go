package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxFrameLen bounds a single request or response. The length prefix is an
// unsigned varint carrying at most a 16-bit value.
const MaxFrameLen = 0xffff

var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes msg as one varint-length-prefixed frame using a single
// Write call.
func WriteFrame(w io.Writer, msg string) error {
	if len(msg) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}
	buf := make([]byte, 0, binary.MaxVarintLen16+len(msg))
	buf = binary.AppendUvarint(buf, uint64(len(msg)))
	buf = append(buf, msg...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame written by WriteFrame. A frame that is not valid
// UTF-8 is still consumed in full and reported as ErrMalformed, so the caller
// may keep reading.
func ReadFrame(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > MaxFrameLen {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	return string(buf), nil
}
