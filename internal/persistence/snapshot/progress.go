package snapshot

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventTableDone EventKind = "table_done"
	EventFallback  EventKind = "resolver_fallback"
	EventFinished  EventKind = "finished"
	EventFailed    EventKind = "failed"
)

// Event describes the progress of one snapshot operation.
type Event struct {
	OperationID string    `json:"operation_id"`
	Operation   string    `json:"operation"`
	Kind        EventKind `json:"kind"`
	Location    string    `json:"location,omitempty"`
	StandID     *int      `json:"stand_id,omitempty"`
	Table       string    `json:"table,omitempty"`
	Rows        int       `json:"rows,omitempty"`
	Skipped     int       `json:"skipped,omitempty"`
	Rejected    int       `json:"rejected,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	// Files lists the local files a finished operation wrote.
	Files []string  `json:"files,omitempty"`
	Time  time.Time `json:"time"`
}

// Observer receives operation events synchronously; implementations must not
// block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// MultiObserver delivers every event to each non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(e Event) {
		for _, o := range list {
			o.Observe(e)
		}
	})
}

type operation struct {
	id       string
	name     string
	location string
	standID  *int
	started  time.Time
	log      hclog.Logger
	observer Observer
	files    []string
}

func (s *Snapshotter) begin(name, location string, standID *int) *operation {
	op := &operation{
		id:       uuid.NewString(),
		name:     name,
		location: location,
		standID:  standID,
		started:  time.Now(),
		observer: s.observer,
	}
	args := []any{"op", name, "location", location}
	if standID != nil {
		args = append(args, "stand", *standID)
	}
	op.log = s.log.With(args...)
	op.log.Info("snapshot operation started")
	op.emit(Event{Kind: EventStarted})
	return op
}

// wrote records a local file for the finished event.
func (op *operation) wrote(path string) {
	if path != "" && DialectFor(path) == SQLite {
		op.files = append(op.files, path)
	}
}

func (op *operation) emit(e Event) {
	if op.observer == nil {
		return
	}
	e.OperationID = op.id
	e.Operation = op.name
	e.Location = op.location
	e.StandID = op.standID
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	op.observer.Observe(e)
}

// finish records metrics and the final event; it returns err unchanged.
func (op *operation) finish(err error) error {
	elapsed := time.Since(op.started)
	status := "success"
	if err != nil {
		status = "error"
		op.log.Error("snapshot operation failed", "elapsed", elapsed, "error", err)
		op.emit(Event{Kind: EventFailed, Error: err.Error()})
	} else {
		op.log.Info("snapshot operation finished", "elapsed", elapsed)
		op.emit(Event{Kind: EventFinished, Files: op.files})
	}
	operationDuration.WithLabelValues(op.name, status).Observe(elapsed.Seconds())
	return err
}

// tableCounter tracks rows of one table and reports every `every` rows.
type tableCounter struct {
	op        *operation
	table     string
	direction string
	every     int

	rows, skipped, rejected int
}

func (op *operation) counter(table, direction string, every int) *tableCounter {
	return &tableCounter{op: op, table: table, direction: direction, every: every}
}

func (c *tableCounter) row() {
	c.rows++
	if c.every > 0 && c.rows%c.every == 0 {
		c.op.log.Debug("snapshot progress", "table", c.table, "rows", c.rows)
		c.op.emit(Event{Kind: EventProgress, Table: c.table, Rows: c.rows, Skipped: c.skipped, Rejected: c.rejected})
	}
}

func (c *tableCounter) skip()   { c.skipped++ }
func (c *tableCounter) reject() { c.rejected++ }

func (c *tableCounter) done() {
	rowsTotal.WithLabelValues(c.table, c.direction).Add(float64(c.rows))
	if c.skipped > 0 {
		rowsSkippedTotal.WithLabelValues(c.table).Add(float64(c.skipped))
	}
	if c.rejected > 0 {
		saplingsRejectedTotal.WithLabelValues(c.table).Add(float64(c.rejected))
	}
	args := []any{"table", c.table, "rows", c.rows}
	if c.skipped > 0 || c.rejected > 0 {
		args = append(args, "skipped", c.skipped, "rejected", c.rejected)
	}
	if c.direction == "write" {
		c.op.log.Info("table saved", args...)
	} else {
		c.op.log.Info("table restored", args...)
	}
	c.op.emit(Event{Kind: EventTableDone, Table: c.table, Rows: c.rows, Skipped: c.skipped, Rejected: c.rejected})
}
