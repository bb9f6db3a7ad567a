package bus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/relay"
	"github.com/roach88/edgerelay/internal/transport"
)

// maxLineSize bounds a single input line.
const maxLineSize = 16 << 20

// Handler consumes decoded messages.
type Handler interface {
	Handle(ctx context.Context, msg relay.Message)
}

// Writer is a relay.Output that writes JSON Lines.
type Writer struct {
	mu     sync.Mutex
	writer *bufio.Writer
	logger *slog.Logger
}

var _ relay.Output = (*Writer)(nil)

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer, logger *slog.Logger) *Writer {
	return &Writer{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Forward writes a response line.
func (w *Writer) Forward(resp *transport.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		w.logger.Error("failed to encode response", "error", err)
		return
	}
	w.write(OutputMsg{Port: PortResponse, Response: data})
}

// Error writes an error line.
func (w *Writer) Error(err error) {
	w.write(OutputMsg{Port: PortError, Error: err.Error()})
}

// Status writes a status line.
func (w *Writer) Status(s model.Status) {
	w.write(OutputMsg{Port: PortStatus, Status: s, Level: s.Level()})
}

func (w *Writer) write(msg OutputMsg) {
	data, err := SerializeOutputMsg(msg)
	if err != nil {
		w.logger.Error("failed to encode output", "port", string(msg.Port), "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(data); err != nil {
		w.logger.Error("failed to write output", "port", string(msg.Port), "error", err)
		return
	}
	if err := w.writer.Flush(); err != nil {
		w.logger.Error("failed to flush output", "port", string(msg.Port), "error", err)
	}
}

// Pump reads messages from r until EOF or ctx is cancelled and passes them
// to h. Lines that fail to decode are reported on out and skipped.
func Pump(ctx context.Context, r io.Reader, h Handler, out relay.Output) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			out.Error(fmt.Errorf("input line %d: %w", line, err))
			continue
		}
		h.Handle(ctx, msg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
