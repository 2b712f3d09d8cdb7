package tracestore

import (
	"fmt"

	"github.com/roach88/rxstore/internal/engine"
	"github.com/roach88/rxstore/internal/ir"
)

// eventRow is the column form of an engine.TraceEvent. Keys are stored in
// their text form; the zero key is stored as "".
type eventRow struct {
	seq      int64
	passID   string
	kind     string
	key      string
	consumer string
	depth    int
}

func eventToRow(ev engine.TraceEvent) eventRow {
	return eventRow{
		seq:      ev.Seq,
		passID:   ev.PassID,
		kind:     string(ev.Kind),
		key:      keyText(ev.Key),
		consumer: keyText(ev.Consumer),
		depth:    ev.Depth,
	}
}

func rowToEvent(r eventRow) (engine.TraceEvent, error) {
	key, err := parseKeyText(r.key)
	if err != nil {
		return engine.TraceEvent{}, fmt.Errorf("event %d: key: %w", r.seq, err)
	}
	consumer, err := parseKeyText(r.consumer)
	if err != nil {
		return engine.TraceEvent{}, fmt.Errorf("event %d: consumer: %w", r.seq, err)
	}
	return engine.TraceEvent{
		Seq:      r.seq,
		PassID:   r.passID,
		Kind:     engine.EventKind(r.kind),
		Key:      key,
		Consumer: consumer,
		Depth:    r.depth,
	}, nil
}

func keyText(k ir.Key) string {
	if k.IsZero() {
		return ""
	}
	return k.String()
}

func parseKeyText(s string) (ir.Key, error) {
	if s == "" {
		return ir.Key{}, nil
	}
	return ir.ParseKey(s)
}
