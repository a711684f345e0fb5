package anthropic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/HyphaGroup/kepoki/internal/backend"
)

// frame line positions
const (
	expectLabel = iota
	expectData
	expectSeparator
)

const readChunkSize = 4096

// FrameParser decodes "event: <name>" / "data: <json>" / blank-line frames
// from bytes fed in arbitrary chunks. It holds no state beyond the current
// stream; discard it to start over.
type FrameParser struct {
	buf     []byte
	state   int
	pending *backend.Event
}

// NewFrameParser creates an empty parser
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed appends transport bytes to the parser buffer
func (p *FrameParser) Feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
}

// Next returns the next complete event. ok is false when the buffer only
// holds part of a frame; the remainder stays buffered for the next Feed.
func (p *FrameParser) Next() (event *backend.Event, ok bool, err error) {
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			return nil, false, nil
		}
		line := strings.TrimRight(string(p.buf[:i]), "\r")
		p.buf = p.buf[i+1:]

		switch p.state {
		case expectLabel:
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !strings.HasPrefix(line, "event:") {
				return nil, false, &DecodeError{Line: line, Err: errors.New("expected event line")}
			}
			p.state = expectData

		case expectData:
			if !strings.HasPrefix(line, "data:") {
				return nil, false, &DecodeError{Line: line, Err: errors.New("expected data line")}
			}
			ev, err := decodePayload(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			if err != nil {
				return nil, false, err
			}
			p.pending = ev
			p.state = expectSeparator

		case expectSeparator:
			if strings.TrimSpace(line) != "" {
				return nil, false, &DecodeError{Line: line, Err: errors.New("expected blank line")}
			}
			ev := p.pending
			p.pending = nil
			p.state = expectLabel
			return ev, true, nil
		}
	}
}

// Partial reports whether an unfinished frame is buffered
func (p *FrameParser) Partial() bool {
	return p.state != expectLabel || len(bytes.TrimSpace(p.buf)) > 0
}

// decodePayload decodes one data line. An "error" payload is the provider
// reporting a failure mid-stream and is returned as *APIError.
func decodePayload(payload string) (*backend.Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil {
		return nil, &DecodeError{Line: payload, Err: err}
	}
	if head.Type == "error" {
		var apiErr APIError
		if err := json.Unmarshal([]byte(payload), &apiErr); err != nil {
			return nil, &DecodeError{Line: payload, Err: err}
		}
		return nil, &apiErr
	}

	var ev backend.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, &DecodeError{Line: payload, Err: err}
	}
	return &ev, nil
}

// eventStream adapts a response body to backend.EventStream
type eventStream struct {
	body   io.ReadCloser
	parser *FrameParser
	chunk  []byte
	eof    bool
	err    error
}

// NewEventStream wraps an SSE body. Transport errors are returned as is.
func NewEventStream(body io.ReadCloser) backend.EventStream {
	return &eventStream{
		body:   body,
		parser: NewFrameParser(),
		chunk:  make([]byte, readChunkSize),
	}
}

// Recv returns the next event, or io.EOF after a clean end of stream
func (s *eventStream) Recv() (*backend.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		ev, ok, err := s.parser.Next()
		if err != nil {
			s.err = err
			return nil, err
		}
		if ok {
			return ev, nil
		}
		if s.eof {
			if s.parser.Partial() {
				s.err = &DecodeError{Err: fmt.Errorf("stream closed mid-frame: %w", io.ErrUnexpectedEOF)}
			} else {
				s.err = io.EOF
			}
			return nil, s.err
		}

		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.parser.Feed(s.chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			s.err = err
			return nil, err
		}
	}
}

// Close releases the response body
func (s *eventStream) Close() error {
	return s.body.Close()
}
