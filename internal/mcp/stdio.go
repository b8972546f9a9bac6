package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"

	"msgmcp/internal/protocol"
)

// StdioEndpoint serves the protocol over newline-delimited JSON on a
// reader/writer pair. This is the symbolic local endpoint used when msgmcp
// runs as a subprocess of the host application; there is no network socket.
type StdioEndpoint struct {
	dispatcher *Dispatcher
	in         io.Reader
	out        io.Writer

	// Logger is optional; when nil the standard library's log package is
	// used.
	Logger *log.Logger
}

func NewStdioEndpoint(dispatcher *Dispatcher, in io.Reader, out io.Writer) *StdioEndpoint {
	return &StdioEndpoint{dispatcher: dispatcher, in: in, out: out}
}

// Serve reads one request per line until EOF or context cancellation and
// writes one response per line. A malformed line produces a PARSE_ERROR
// response rather than terminating the loop.
func (e *StdioEndpoint) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(e.in)
	// conversation bodies can be large; raise the line limit well above the
	// bufio default.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(e.out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp := e.dispatcher.HandleRaw(ctx, []byte(line))
		if resp.Error != nil && resp.Error.Code == protocol.CodeParseError {
			e.logf("stdio: malformed request line (%d bytes)", len(line))
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (e *StdioEndpoint) logf(format string, args ...interface{}) {
	if e != nil && e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
