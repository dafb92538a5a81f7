package midiout

import (
	"fmt"
	"log/slog"
)

// LogPort is a dry-run output that logs every message instead of sending it.
type LogPort struct {
	logger *slog.Logger
}

// NewLogPort logs to l, or slog.Default when l is nil.
func NewLogPort(l *slog.Logger) *LogPort {
	if l == nil {
		l = slog.Default()
	}
	return &LogPort{logger: l}
}

func (p *LogPort) Send(m Message) error {
	p.logger.Info("midi: out",
		"channel", m.Channel+1,
		"kind", m.Kind.String(),
		"index", m.Index,
		"value", m.Value,
		"bytes", fmt.Sprintf("% X", m.Bytes()),
	)
	return nil
}
