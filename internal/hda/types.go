package hda

import (
	"fmt"
	"time"
)

// ItemID is the fully qualified identifier of a historian item.
type ItemID string

// ServerHandle identifies an item within one request. It is assigned by the
// remote endpoint when the initiating call is accepted.
type ServerHandle int32

// ClientHandle is an opaque per-item value chosen by the caller.
type ClientHandle int32

// Item is the locally known identity of a historian item.
type Item struct {
	ID           ItemID       `json:"id" yaml:"id"`
	Path         string       `json:"path,omitempty" yaml:"path,omitempty"`
	ClientHandle ClientHandle `json:"client_handle,omitempty" yaml:"client_handle,omitempty"`
}

// TimeRange is a closed interval. Start may be after End, which requests
// values in descending time order.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Descending reports whether the range runs backwards in time.
func (r TimeRange) Descending() bool {
	return r.Start.After(r.End)
}

// Contains reports whether t lies within the range, regardless of direction.
func (r TimeRange) Contains(t time.Time) bool {
	lo, hi := r.Start, r.End
	if r.Descending() {
		lo, hi = hi, lo
	}
	return !t.Before(lo) && !t.After(hi)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(time.RFC3339Nano), r.End.Format(time.RFC3339Nano))
}

// Value is one historical sample.
type Value struct {
	Timestamp time.Time `json:"timestamp"`
	Data      float64   `json:"data"`
	Quality   Quality   `json:"quality"`
}

// Annotation is a free-text note attached to an item at a point in time.
type Annotation struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	User      string    `json:"user,omitempty"`
	Created   time.Time `json:"created"`
}

// AttributeID identifies an item attribute.
type AttributeID uint32

// Well-known attribute identifiers.
const (
	AttrDataType AttributeID = iota + 1
	AttrDescription
	AttrEngUnits
	AttrStepped
	AttrArchiving
	AttrMaxTimeInterval
	AttrMinTimeInterval
)

var attributeNames = map[AttributeID]string{
	AttrDataType:        "DataType",
	AttrDescription:     "Description",
	AttrEngUnits:        "EngUnits",
	AttrStepped:         "Stepped",
	AttrArchiving:       "Archiving",
	AttrMaxTimeInterval: "MaxTimeInterval",
	AttrMinTimeInterval: "MinTimeInterval",
}

func (a AttributeID) String() string {
	if name, ok := attributeNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Attribute(%d)", uint32(a))
}

// ParseAttributeID resolves an attribute name to its identifier.
func ParseAttributeID(name string) (AttributeID, bool) {
	for id, n := range attributeNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// AttributeValue is the value of one attribute at one point in time.
type AttributeValue struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// AttributeResult holds the values of one attribute of one item.
type AttributeResult struct {
	ID     AttributeID      `json:"id"`
	Values []AttributeValue `json:"values"`
	Err    error            `json:"-"`
}

// EditType selects how an update changes history.
type EditType int

const (
	EditInsert EditType = iota + 1
	EditReplace
	EditInsertReplace
	EditDelete
)

func (e EditType) String() string {
	switch e {
	case EditInsert:
		return "Insert"
	case EditReplace:
		return "Replace"
	case EditInsertReplace:
		return "InsertReplace"
	case EditDelete:
		return "Delete"
	default:
		return fmt.Sprintf("EditType(%d)", int(e))
	}
}
