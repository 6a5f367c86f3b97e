package goIdentity

import (
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

// AuditEvent is one append-only audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. Emit must
// not block for long; failures stay inside the sink.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
	MultiSink      = audit.MultiSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink logs every event as one structured line.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}
