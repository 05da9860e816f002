package providerutil

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	// Type is the "event:" field, empty for the default event type.
	Type string
	// Data is the payload; multiple data lines are joined with "\n".
	Data string
}

// SSEScanner reads Server-Sent Events from an io.Reader.
//
// Events are delimited by blank lines. Comment lines (starting with
// ":") and unknown fields are ignored.
//
//	scanner := NewSSEScanner(body)
//	for scanner.Next() {
//	    ev := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEEvent
	err     error
}

// NewSSEScanner creates a scanner that reads events from r.
func NewSSEScanner(r io.Reader) *SSEScanner {
	return &SSEScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at EOF or on error;
// use Err to tell them apart.
func (s *SSEScanner) Next() bool {
	s.current = SSEEvent{}
	if s.err != nil {
		return false
	}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && hasData {
				s.current = SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				s.err = io.EOF
				return true
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				s.current = SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field = line
			value = ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		}

		// A final line without trailing newline ends the stream.
		if err == io.EOF {
			if hasData {
				s.current = SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				s.err = io.EOF
				return true
			}
			s.err = io.EOF
			return false
		}
	}
}

// Event returns the most recently parsed event.
func (s *SSEScanner) Event() SSEEvent {
	return s.current
}

// Err returns the first non-EOF error encountered.
func (s *SSEScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
