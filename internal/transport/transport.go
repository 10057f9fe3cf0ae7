package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
)

// Op names a remote operation.
type Op int

const (
	OpReadRaw Op = iota + 1
	OpReadProcessed
	OpReadAtTime
	OpReadAttributes
	OpReadAnnotations
	OpUpdate
	OpDelete
	OpDeleteAtTime
	OpInsertAnnotations
	OpAdviseRaw
	OpPlayback
)

var opNames = []string{
	OpReadRaw:           "ReadRaw",
	OpReadProcessed:     "ReadProcessed",
	OpReadAtTime:        "ReadAtTime",
	OpReadAttributes:    "ReadAttributes",
	OpReadAnnotations:   "ReadAnnotations",
	OpUpdate:            "Update",
	OpDelete:            "Delete",
	OpDeleteAtTime:      "DeleteAtTime",
	OpInsertAnnotations: "InsertAnnotations",
	OpAdviseRaw:         "AdviseRaw",
	OpPlayback:          "Playback",
}

func (o Op) String() string {
	if o > 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Call is one initiating remote call. Which fields are meaningful depends
// on Op.
type Call struct {
	Op        Op
	RequestID correlate.ID
	Items     []hda.Item

	// Range bounds reads, deletes, advise (Start only) and playback.
	Range hda.TimeRange

	// MaxValues caps raw values per item. Zero means no cap.
	MaxValues int

	// Aggregate and Interval select the calculation of a processed read.
	// For AdviseRaw and Playback, Interval is the update period.
	Aggregate hda.Aggregate
	Interval  time.Duration

	// Window is the span of history replayed per Playback delivery.
	Window time.Duration

	// Times are the timestamps of ReadAtTime.
	Times []time.Time

	Attributes []hda.AttributeID

	// Edit selects insert, replace or insert-replace for OpUpdate.
	Edit hda.EditType

	// Values and Annotations are aligned with Items. For OpDeleteAtTime only
	// the timestamps of Values are used.
	Values      [][]hda.Value
	Annotations [][]hda.Annotation
}

// Reply is the synchronous outcome of Begin.
type Reply struct {
	CancelID correlate.CancelID
	Actual   hda.TimeRange
	Items    []correlate.InitialItem
}

// Sink receives every asynchronous frame from the channel.
type Sink interface {
	Dispatch(id correlate.ID, p correlate.Payload)
	CancelAcknowledged(cancelID correlate.CancelID) bool
}

// Transport carries remote calls.
type Transport interface {
	// Bind installs the sink for all later deliveries.
	Bind(sink Sink)

	// Begin issues an initiating call.
	Begin(ctx context.Context, call *Call) (*Reply, error)

	// Cancel asks the endpoint to stop a call. The acknowledgment arrives
	// later through Sink.CancelAcknowledged.
	Cancel(ctx context.Context, cancelID correlate.CancelID) error
}
