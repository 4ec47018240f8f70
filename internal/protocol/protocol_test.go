package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ReylordDev/LocalFlow/internal/store"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeRequests(t *testing.T) {
	id := uuid.New()
	msg, err := Decode([]byte(`{"kind":"request","channel":"database:modes:activateMode","id":"r1","data":"` + id.String() + `"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req, ok := msg.(ActivateMode)
	if !ok {
		t.Fatalf("expected ActivateMode, got %T", msg)
	}
	if req.RequestID() != "r1" || req.Channel() != ChannelActivateMode || req.ModeID != id {
		t.Fatalf("unexpected request %+v", req)
	}

	msg, err = Decode([]byte(`{"kind":"request","channel":"database:examples:addExample","id":"r2","data":{"prompt_id":"` + id.String() + `","example":{"input":"a","output":"b"}}}`))
	if err != nil {
		t.Fatalf("decode add example: %v", err)
	}
	add := msg.(AddExample)
	if add.PromptID != id || add.Example.Input != "a" || add.Example.Output != "b" {
		t.Fatalf("unexpected add example %+v", add)
	}

	msg, err = Decode([]byte(`{"kind":"request","channel":"device:set","id":"r3","data":{"index":2,"name":"mic","max_input_channels":1,"default_samplerate":44100.0,"is_default":false}}`))
	if err != nil {
		t.Fatalf("decode set device: %v", err)
	}
	if set := msg.(SetDevice); set.Device.Index != 2 {
		t.Fatalf("unexpected device %+v", set.Device)
	}

	if _, err := Decode([]byte(`{"kind":"request","channel":"database:modes:getAll","id":"r4","data":null}`)); err != nil {
		t.Fatalf("decode getAll: %v", err)
	}
}

func TestDecodeRejectsWithCorrelation(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{"unknown channel", `{"kind":"request","channel":"database:nope","id":"x1"}`, ErrUnknownChannel},
		{"wrong payload", `{"kind":"request","channel":"database:modes:deleteMode","id":"x2","data":{"id":1}}`, ErrMalformed},
		{"unexpected data", `{"kind":"request","channel":"device:getAll","id":"x3","data":{"a":1}}`, ErrMalformed},
		{"unknown field", `{"kind":"request","channel":"database:textReplacements:create","id":"x4","data":{"original_text":"a","replacement_text":"b","extra":1}}`, ErrMalformed},
		{"unknown envelope field", `{"kind":"request","channel":"device:getAll","id":"x5","bogus":true}`, ErrMalformed},
	}
	for _, tc := range cases {
		_, err := Decode([]byte(tc.line))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) || !decodeErr.Correlated() {
			t.Fatalf("%s: expected correlated decode error, got %#v", tc.name, err)
		}
	}
}

func TestDecodeCommands(t *testing.T) {
	msg, err := Decode([]byte(`{"kind":"command","action":"toggle"}`))
	if err != nil || msg != Inbound(Toggle{}) {
		t.Fatalf("expected toggle, got %v %v", msg, err)
	}
	id := uuid.New()
	msg, err = Decode([]byte(`{"kind":"command","action":"switch_mode","data":{"mode_id":"` + id.String() + `"}}`))
	if err != nil {
		t.Fatalf("decode switch_mode: %v", err)
	}
	if sw := msg.(SwitchMode); sw.ModeID != id {
		t.Fatalf("unexpected switch_mode %+v", sw)
	}
	if _, err := Decode([]byte(`{"kind":"command","action":"explode"}`)); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, err := Decode([]byte(`{"kind":"command","action":"switch_mode","data":{}}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for empty switch_mode, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for garbage, got %v", err)
	}
}

func TestEncodeUpdate(t *testing.T) {
	data, err := EncodeUpdate(Status{Status: "recording"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"kind":"update","updateKind":"status","status":"recording"}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	ai := "Hello."
	data, err = EncodeUpdate(ResultUpdate{Result: store.Result{
		ID:             uuid.New(),
		CreatedAt:      time.Unix(1700000000, 0),
		Transcription:  "hello",
		AIResult:       &ai,
		Duration:       1500 * time.Millisecond,
		ProcessingTime: 250 * time.Millisecond,
	}})
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	result := decoded["result"].(map[string]any)
	if decoded["updateKind"] != "result" || result["duration"] != 1.5 || result["created_at"] != 1.7e9 {
		t.Fatalf("unexpected result update %s", data)
	}
}

func TestResponseEncoding(t *testing.T) {
	data, err := json.Marshal(Response{Channel: ChannelGetDevices, ID: "r1", Data: []int{1}, Error: "boom"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"response","channel":"device:getAll","id":"r1","data":null,"error":"boom"}` {
		t.Fatalf("unexpected response %s", data)
	}
}

type recordingSink struct {
	mu        sync.Mutex
	updates   []Update
	responses []Response
}

func (s *recordingSink) Emit(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingSink) Respond(r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
}

func TestServeKeepsReadingAfterMalformedInput(t *testing.T) {
	input := strings.Join([]string{
		`{"kind":"command","action":"toggle"}`,
		`garbage`,
		``,
		`{"kind":"request","channel":"database:unknown","id":"q1"}`,
		strings.Repeat("x", MaxLineSize+10),
		`{"kind":"request","channel":"device:getAll","id":"q2"}`,
	}, "\n")

	sink := &recordingSink{}
	var handled []Inbound
	err := Serve(context.Background(), strings.NewReader(input), sink, func(_ context.Context, msg Inbound) {
		handled = append(handled, msg)
	}, newLogger())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if len(handled) != 2 {
		t.Fatalf("expected 2 handled messages, got %d", len(handled))
	}
	if _, ok := handled[1].(GetDevices); !ok {
		t.Fatalf("expected GetDevices last, got %T", handled[1])
	}
	if len(sink.responses) != 1 || sink.responses[0].ID != "q1" || sink.responses[0].Error == "" {
		t.Fatalf("expected one error response for q1, got %+v", sink.responses)
	}
	if len(sink.updates) != 2 {
		t.Fatalf("expected error updates for garbage and oversized lines, got %+v", sink.updates)
	}
}

func TestWriterWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, newLogger())
	sink := Fanout{w}
	sink.Emit(AudioLevelUpdate{AudioLevel: 12.5})
	sink.Respond(Respond(GetDevices{header{ID: "r9", Chan: ChannelGetDevices}}, []string{"a"}, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if lines[0] != `{"kind":"update","updateKind":"audio_level","audio_level":12.5}` {
		t.Fatalf("unexpected update line %s", lines[0])
	}
	if lines[1] != `{"kind":"response","channel":"device:getAll","id":"r9","data":["a"]}` {
		t.Fatalf("unexpected response line %s", lines[1])
	}
}
