package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// MaxFrameSize bounds a single line and the accumulated data of one frame.
const MaxFrameSize = 1 << 20

var (
	// ErrStreamEnded is returned when the server closes the event stream.
	ErrStreamEnded = errors.New("event stream ended")
	// ErrFrameTooLarge is returned when a line or frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("event stream frame too large")
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	ID    string
	Data  string
}

type sseStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	open      atomic.Bool
	closeOnce sync.Once
}

// NewSSEStream decodes text/event-stream frames from body.
func NewSSEStream(body io.ReadCloser) Stream {
	s := &sseStream{
		body:   body,
		reader: bufio.NewReaderSize(body, 64*1024),
	}
	s.open.Store(true)
	return s
}

// Next blocks until a complete frame (terminated by a blank line) is read.
// Frames carrying neither data nor an event name are skipped.
func (s *sseStream) Next() (Frame, error) {
	var (
		f       Frame
		buf     strings.Builder
		hasData bool
	)
	for {
		line, err := s.readLine()
		if err != nil {
			s.open.Store(false)
			if errors.Is(err, io.EOF) {
				return Frame{}, ErrStreamEnded
			}
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData || f.Event != "" {
				f.Data = buf.String()
				return f, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			if hasData {
				buf.WriteByte('\n')
			}
			buf.WriteString(value)
			hasData = true
			if buf.Len() > MaxFrameSize {
				s.open.Store(false)
				return Frame{}, ErrFrameTooLarge
			}
		case "id":
			f.ID = value
		}
	}
}

// readLine reads up to and including '\n', failing once the line passes MaxFrameSize.
func (s *sseStream) readLine() (string, error) {
	var long []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(long)+len(chunk) > MaxFrameSize {
			return "", ErrFrameTooLarge
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			long = append(long, chunk...)
			continue
		}
		if err != nil {
			return "", err
		}
		if long == nil {
			return string(chunk), nil
		}
		return string(append(long, chunk...)), nil
	}
}

func (s *sseStream) IsOpen() bool {
	return s.open.Load()
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.open.Store(false)
		err = s.body.Close()
	})
	return err
}
