package bus

import (
	"encoding/json"
	"log/slog"

	"github.com/ReylordDev/LocalFlow/internal/protocol"
)

// Mirror publishes every outbound protocol message. Updates go to
// <prefix>.update.<updateKind> and responses to <prefix>.response, using the
// same JSON encoding as the stdout channel. Publish failures are logged and
// never reach the session.
type Mirror struct {
	client *Client
	prefix string
	log    *slog.Logger
}

func NewMirror(client *Client, prefix string, log *slog.Logger) *Mirror {
	return &Mirror{client: client, prefix: prefix, log: log.With(slog.String("component", "bus-mirror"))}
}

// UpdateSubject is the subject an update of the given kind is published on.
func UpdateSubject(prefix string, kind protocol.UpdateKind) string {
	return prefix + "." + protocol.SubjectUpdatePrefix + "." + string(kind)
}

// ResponseSubject is the subject responses are published on.
func ResponseSubject(prefix string) string {
	return prefix + "." + protocol.SubjectResponse
}

func (m *Mirror) Emit(u protocol.Update) {
	data, err := protocol.EncodeUpdate(u)
	if err != nil {
		m.log.Warn("failed to encode update", slog.String("update", string(u.Kind())), slog.String("error", err.Error()))
		return
	}
	m.publish(UpdateSubject(m.prefix, u.Kind()), data)
}

func (m *Mirror) Respond(r protocol.Response) {
	data, err := json.Marshal(r)
	if err != nil {
		m.log.Warn("failed to encode response", slog.String("channel", string(r.Channel)), slog.String("error", err.Error()))
		return
	}
	m.publish(ResponseSubject(m.prefix), data)
}

func (m *Mirror) publish(subject string, data []byte) {
	if !m.client.Healthy() {
		m.log.Debug("bus unavailable, dropping message", slog.String("subject", subject))
		return
	}
	if err := m.client.conn.Publish(subject, data); err != nil {
		m.log.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
