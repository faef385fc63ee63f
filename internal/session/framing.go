package session

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
)

// rawReadSize is the read buffer for raw framing.
const rawReadSize = 1024

// frameReader splits a device byte stream into messages.
type frameReader interface {
	// Next returns the next message. The returned slice is owned by the
	// caller. io.EOF means the peer closed the connection.
	Next() ([]byte, error)
}

// newFrameReader returns the reader for the given framing mode.
func newFrameReader(r io.Reader, framing string, maxSize int) (frameReader, error) {
	switch framing {
	case config.FramingLine, "":
		return newLineReader(r, maxSize), nil
	case config.FramingRaw:
		return &rawReader{r: r, buf: make([]byte, rawReadSize)}, nil
	default:
		return nil, fmt.Errorf("session: unknown framing %q", framing)
	}
}

// lineReader yields newline-terminated messages without the terminator.
// A final unterminated line before EOF is still delivered.
type lineReader struct {
	br *bufio.Reader
}

func newLineReader(r io.Reader, maxSize int) *lineReader {
	if maxSize < 16 { //nolint:mnd // bufio minimum buffer
		maxSize = 16
	}
	return &lineReader{br: bufio.NewReaderSize(r, maxSize)}
}

func (l *lineReader) Next() ([]byte, error) {
	line, err := l.br.ReadSlice('\n')
	switch {
	case err == nil:
		return bytes.Clone(bytes.TrimRight(line, "\r\n")), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, ErrMessageTooLong
	case errors.Is(err, io.EOF) && len(line) > 0:
		return bytes.Clone(bytes.TrimRight(line, "\r")), nil
	default:
		return nil, err
	}
}

// rawReader treats every successful Read as one message, matching what
// simple modems do when they write each message in a single packet.
type rawReader struct {
	r       io.Reader
	buf     []byte
	pending error
}

func (rr *rawReader) Next() ([]byte, error) {
	if rr.pending != nil {
		err := rr.pending
		rr.pending = nil
		return nil, err
	}
	for {
		n, err := rr.r.Read(rr.buf)
		if n > 0 {
			rr.pending = err
			return bytes.Clone(rr.buf[:n]), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
