package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// MaxLineSize bounds a single inbound message.
const MaxLineSize = 1 << 20

// Sink receives outbound messages.
type Sink interface {
	Emit(Update)
	Respond(Response)
}

// Fanout forwards every message to each sink in order.
type Fanout []Sink

func (f Fanout) Emit(u Update) {
	for _, s := range f {
		s.Emit(u)
	}
}

func (f Fanout) Respond(r Response) {
	for _, s := range f {
		s.Respond(r)
	}
}

// Writer encodes messages as one JSON object per line. It is safe for
// concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

func NewWriter(w io.Writer, logger *slog.Logger) *Writer {
	return &Writer{w: w, logger: logger.With(slog.String("component", "protocol-writer"))}
}

func (w *Writer) Emit(u Update) {
	data, err := EncodeUpdate(u)
	if err != nil {
		w.logger.Error("failed to encode update", slog.String("update", string(u.Kind())), slogError(err))
		return
	}
	w.write(data)
}

func (w *Writer) Respond(r Response) {
	data, err := json.Marshal(r)
	if err != nil {
		w.logger.Error("failed to encode response", slog.String("channel", string(r.Channel)), slogError(err))
		data, _ = json.Marshal(Response{Channel: r.Channel, ID: r.ID, Error: "encode response: " + err.Error()})
	}
	w.write(data)
}

func (w *Writer) write(data []byte) {
	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		w.logger.Error("failed to write message", slogError(err))
	}
}

// Handler processes one decoded inbound message.
type Handler func(ctx context.Context, msg Inbound)

var errLineTooLong = fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, MaxLineSize)

// Serve reads lines from r until EOF or ctx is done and hands each decoded
// message to handle, one at a time. Lines that fail to decode are answered
// on sink and never stop the loop.
func Serve(ctx context.Context, r io.Reader, sink Sink, handle Handler, logger *slog.Logger) error {
	logger = logger.With(slog.String("component", "protocol"))
	type lineResult struct {
		line []byte
		err  error
	}
	lines := make(chan lineResult)
	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := readLine(reader)
			if err != nil && !errors.Is(err, errLineTooLong) {
				if !errors.Is(err, io.EOF) {
					select {
					case lines <- lineResult{err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case lines <- lineResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-lines:
			if !ok {
				logger.Info("input closed")
				return nil
			}
			if res.err != nil && !errors.Is(res.err, errLineTooLong) {
				return fmt.Errorf("read input: %w", res.err)
			}
			if res.err != nil {
				logger.Warn("discarding oversized line")
				sink.Emit(ErrorUpdate{Error: res.err.Error()})
				continue
			}
			if len(bytes.TrimSpace(res.line)) == 0 {
				continue
			}
			msg, err := Decode(res.line)
			if err != nil {
				reject(sink, err, logger)
				continue
			}
			handle(ctx, msg)
		}
	}
}

func reject(sink Sink, err error, logger *slog.Logger) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Correlated() {
		logger.Warn("rejecting request", slog.String("id", decodeErr.ID), slog.String("channel", string(decodeErr.Channel)), slogError(err))
		sink.Respond(Response{Channel: decodeErr.Channel, ID: decodeErr.ID, Error: err.Error()})
		return
	}
	logger.Warn("rejecting message", slogError(err))
	sink.Emit(ErrorUpdate{Error: err.Error()})
}

// readLine returns the next line without its terminator. Oversized lines
// are consumed and reported as errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > MaxLineSize+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil && (len(line) == 0 || tooLong):
			if tooLong && errors.Is(err, io.EOF) {
				return nil, errLineTooLong
			}
			return nil, err
		}
		if tooLong {
			return nil, errLineTooLong
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
