package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ReylordDev/LocalFlow/internal/audio"
	"github.com/ReylordDev/LocalFlow/internal/store"
)

// Inbound is a decoded line from the host: a Request or a Command.
type Inbound interface {
	isInbound()
}

// Request expects exactly one Response with the same id and channel.
type Request interface {
	Inbound
	RequestID() string
	Channel() Channel
}

// Command produces updates but no response.
type Command interface {
	Inbound
	Action() Action
}

type header struct {
	ID   string
	Chan Channel
}

func (h header) RequestID() string { return h.ID }
func (h header) Channel() Channel  { return h.Chan }
func (header) isInbound()          {}

type (
	GetModes            struct{ header }
	GetResults          struct{ header }
	GetVoiceModels      struct{ header }
	GetLanguageModels   struct{ header }
	GetTextReplacements struct{ header }
	GetDevices          struct{ header }

	GetMode struct {
		header
		ModeID uuid.UUID
	}
	CreateMode struct {
		header
		Mode store.ModeCreate
	}
	UpdateMode struct {
		header
		Update store.ModeUpdate
	}
	DeleteMode struct {
		header
		ModeID uuid.UUID
	}
	ActivateMode struct {
		header
		ModeID uuid.UUID
	}
	DeleteResult struct {
		header
		ResultID uuid.UUID
	}
	AddExample struct {
		header
		PromptID uuid.UUID
		Example  store.ExampleInput
	}
	CreateTextReplacement struct {
		header
		Replacement store.TextReplacementInput
	}
	DeleteTextReplacement struct {
		header
		ReplacementID uuid.UUID
	}
	SetDevice struct {
		header
		Device audio.Device
	}
)

type (
	Toggle     struct{}
	Cancel     struct{}
	AudioLevel struct{}
	SwitchMode struct {
		ModeID uuid.UUID `json:"mode_id"`
	}
)

func (Toggle) Action() Action     { return ActionToggle }
func (Cancel) Action() Action     { return ActionCancel }
func (AudioLevel) Action() Action { return ActionAudioLevel }
func (SwitchMode) Action() Action { return ActionSwitchMode }
func (Toggle) isInbound()         {}
func (Cancel) isInbound()         {}
func (AudioLevel) isInbound()     {}
func (SwitchMode) isInbound()     {}

type addExampleData struct {
	PromptID uuid.UUID          `json:"prompt_id"`
	Example  store.ExampleInput `json:"example"`
}

type requestDecoder func(h header, data json.RawMessage) (Request, error)

// requestDecoders is the closed channel to payload mapping.
var requestDecoders = map[Channel]requestDecoder{
	ChannelGetModes:            noData(func(h header) Request { return GetModes{h} }),
	ChannelGetResults:          noData(func(h header) Request { return GetResults{h} }),
	ChannelGetVoiceModels:      noData(func(h header) Request { return GetVoiceModels{h} }),
	ChannelGetLanguageModels:   noData(func(h header) Request { return GetLanguageModels{h} }),
	ChannelGetTextReplacements: noData(func(h header) Request { return GetTextReplacements{h} }),
	ChannelGetDevices:          noData(func(h header) Request { return GetDevices{h} }),
	ChannelGetMode: func(h header, data json.RawMessage) (Request, error) {
		id, err := decodeStrict[uuid.UUID](data)
		return GetMode{h, id}, err
	},
	ChannelCreateMode: func(h header, data json.RawMessage) (Request, error) {
		in, err := decodeStrict[store.ModeCreate](data)
		return CreateMode{h, in}, err
	},
	ChannelUpdateMode: func(h header, data json.RawMessage) (Request, error) {
		in, err := decodeStrict[store.ModeUpdate](data)
		if err == nil && in.ID == uuid.Nil {
			err = fmt.Errorf("%w: mode update requires id", ErrMalformed)
		}
		return UpdateMode{h, in}, err
	},
	ChannelDeleteMode: func(h header, data json.RawMessage) (Request, error) {
		id, err := decodeStrict[uuid.UUID](data)
		return DeleteMode{h, id}, err
	},
	ChannelActivateMode: func(h header, data json.RawMessage) (Request, error) {
		id, err := decodeStrict[uuid.UUID](data)
		return ActivateMode{h, id}, err
	},
	ChannelDeleteResult: func(h header, data json.RawMessage) (Request, error) {
		id, err := decodeStrict[uuid.UUID](data)
		return DeleteResult{h, id}, err
	},
	ChannelAddExample: func(h header, data json.RawMessage) (Request, error) {
		in, err := decodeStrict[addExampleData](data)
		return AddExample{h, in.PromptID, in.Example}, err
	},
	ChannelCreateTextReplacement: func(h header, data json.RawMessage) (Request, error) {
		in, err := decodeStrict[store.TextReplacementInput](data)
		return CreateTextReplacement{h, in}, err
	},
	ChannelDeleteTextReplacement: func(h header, data json.RawMessage) (Request, error) {
		id, err := decodeStrict[uuid.UUID](data)
		return DeleteTextReplacement{h, id}, err
	},
	ChannelSetDevice: func(h header, data json.RawMessage) (Request, error) {
		dev, err := decodeStrict[audio.Device](data)
		return SetDevice{h, dev}, err
	},
}

func noData(build func(header) Request) requestDecoder {
	return func(h header, data json.RawMessage) (Request, error) {
		if !isNull(data) {
			return nil, fmt.Errorf("%w: %s takes no data", ErrMalformed, h.Chan)
		}
		return build(h), nil
	}
}

type envelope struct {
	Kind    string          `json:"kind"`
	Channel Channel         `json:"channel"`
	ID      string          `json:"id"`
	Action  Action          `json:"action"`
	Data    json.RawMessage `json:"data"`
}

// DecodeError reports a line that could not be decoded. ID and Channel are
// set when they could be recovered, so the caller can answer with an error
// Response.
type DecodeError struct {
	ID      string
	Channel Channel
	Err     error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Correlated reports whether the failure belongs to an identifiable request.
func (e *DecodeError) Correlated() bool { return e.ID != "" && e.Channel != "" }

// Decode parses one inbound line.
func Decode(line []byte) (Inbound, error) {
	env, err := decodeStrict[envelope](line)
	if err != nil {
		// A loose parse still recovers the correlation id for the response.
		var loose envelope
		_ = json.Unmarshal(line, &loose)
		return nil, &DecodeError{ID: loose.ID, Channel: loose.Channel, Err: err}
	}

	switch env.Kind {
	case KindRequest:
		if env.ID == "" {
			return nil, &DecodeError{Channel: env.Channel, Err: fmt.Errorf("%w: request without id", ErrMalformed)}
		}
		decode, ok := requestDecoders[env.Channel]
		if !ok {
			return nil, &DecodeError{ID: env.ID, Channel: env.Channel, Err: fmt.Errorf("%w: %q", ErrUnknownChannel, env.Channel)}
		}
		req, err := decode(header{ID: env.ID, Chan: env.Channel}, env.Data)
		if err != nil {
			return nil, &DecodeError{ID: env.ID, Channel: env.Channel, Err: err}
		}
		return req, nil
	case KindCommand:
		cmd, err := decodeCommand(env)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return cmd, nil
	default:
		return nil, &DecodeError{ID: env.ID, Channel: env.Channel, Err: fmt.Errorf("%w: unknown kind %q", ErrMalformed, env.Kind)}
	}
}

func decodeCommand(env envelope) (Command, error) {
	switch env.Action {
	case ActionToggle, ActionCancel, ActionAudioLevel:
		if !isNull(env.Data) {
			return nil, fmt.Errorf("%w: %s takes no data", ErrMalformed, env.Action)
		}
		switch env.Action {
		case ActionToggle:
			return Toggle{}, nil
		case ActionCancel:
			return Cancel{}, nil
		default:
			return AudioLevel{}, nil
		}
	case ActionSwitchMode:
		cmd, err := decodeStrict[SwitchMode](env.Data)
		if err != nil {
			return nil, err
		}
		if cmd.ModeID == uuid.Nil {
			return nil, fmt.Errorf("%w: switch_mode requires mode_id", ErrMalformed)
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

func decodeStrict[T any](data []byte) (T, error) {
	var out T
	if isNull(data) {
		return out, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return out, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return out, nil
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
