package report

import (
	"sync"

	"go.uber.org/zap"
)

// Emitter publishes individual progress events. Scanner callers stay
// agnostic about where events end up.
type Emitter interface {
	Emit(evt Event)
}

// ZapSink logs each event through a structured logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink returns an Emitter that writes events to the logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Emit implements Emitter.
func (s *ZapSink) Emit(evt Event) {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("stage", string(evt.Stage)),
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.PageType != "" {
		fields = append(fields, zap.String("page_type", evt.PageType))
	}
	switch evt.Stage {
	case StageURLDone:
		fields = append(fields,
			zap.Int("errors", evt.Errors),
			zap.Int("unaccepted", evt.Unaccepted),
			zap.Duration("dur", evt.Dur),
		)
		s.logger.Info("url validated", fields...)
	case StageURLError:
		fields = append(fields, zap.String("note", evt.Note))
		s.logger.Warn("url failed", fields...)
	default:
		s.logger.Info("scan progress", fields...)
	}
}

// Recorder collects events for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// MultiEmitter fans one event out to several emitters.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(evt Event) {
	for _, e := range m {
		e.Emit(evt)
	}
}
