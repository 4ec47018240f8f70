package protocol

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/ReylordDev/LocalFlow/internal/store"
)

// Response answers one Request. Data is null when Error is set.
type Response struct {
	Channel Channel
	ID      string
	Data    any
	Error   string
}

type responseJSON struct {
	Kind    string  `json:"kind"`
	Channel Channel `json:"channel"`
	ID      string  `json:"id"`
	Data    any     `json:"data"`
	Error   string  `json:"error,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{Kind: KindResponse, Channel: r.Channel, ID: r.ID, Data: r.Data, Error: r.Error}
	if r.Error != "" {
		out.Data = nil
	}
	return json.Marshal(out)
}

// Respond builds the response to req from a handler's result.
func Respond(req Request, data any, err error) Response {
	resp := Response{Channel: req.Channel(), ID: req.RequestID(), Data: data}
	if err != nil {
		resp.Error = err.Error()
		resp.Data = nil
	}
	return resp
}

// Update is an unsolicited event pushed to the host.
type Update interface {
	Kind() UpdateKind
	isUpdate()
}

type (
	// Progress reports the start or completion of a long running step.
	Progress struct {
		Step      string  `json:"step"`
		Status    string  `json:"status"`
		Timestamp float64 `json:"timestamp"`
	}
	Status struct {
		Status string `json:"status"`
	}
	AudioLevelUpdate struct {
		AudioLevel float64 `json:"audio_level"`
	}
	Transcription struct {
		Transcription string `json:"transcription"`
	}
	ResultUpdate struct {
		Result store.Result `json:"result"`
	}
	ErrorUpdate struct {
		Error string `json:"error"`
	}
	// Exception reports a fatal failure before the process exits.
	Exception struct {
		Exception string  `json:"exception"`
		Timestamp float64 `json:"timestamp"`
	}
	Modes struct {
		Modes []store.Mode `json:"modes"`
	}
)

// Progress step statuses.
const (
	ProgressStart    = "start"
	ProgressComplete = "complete"
	ProgressError    = "error"
)

// NewProgress stamps a progress update with the current time.
func NewProgress(step, status string) Progress {
	return Progress{Step: step, Status: status, Timestamp: unixSeconds(time.Now())}
}

// NewException stamps an exception update with the current time.
func NewException(err error) Exception {
	return Exception{Exception: err.Error(), Timestamp: unixSeconds(time.Now())}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func (Progress) Kind() UpdateKind         { return UpdateProgress }
func (Status) Kind() UpdateKind           { return UpdateStatus }
func (AudioLevelUpdate) Kind() UpdateKind { return UpdateAudioLevel }
func (Transcription) Kind() UpdateKind    { return UpdateTranscription }
func (ResultUpdate) Kind() UpdateKind     { return UpdateResult }
func (ErrorUpdate) Kind() UpdateKind      { return UpdateError }
func (Exception) Kind() UpdateKind        { return UpdateException }
func (Modes) Kind() UpdateKind            { return UpdateModes }

func (Progress) isUpdate()         {}
func (Status) isUpdate()           {}
func (AudioLevelUpdate) isUpdate() {}
func (Transcription) isUpdate()    {}
func (ResultUpdate) isUpdate()     {}
func (ErrorUpdate) isUpdate()      {}
func (Exception) isUpdate()        {}
func (Modes) isUpdate()            {}

// EncodeUpdate renders u with its kind and updateKind discriminators.
func EncodeUpdate(u Update) ([]byte, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	kind, err := json.Marshal(u.Kind())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":"update","updateKind":`)
	buf.Write(kind)
	body = bytes.TrimSpace(body)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
