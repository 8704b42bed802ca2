// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

// Keys that an EventStream appends to every decoded event.
const (
	EventNameKey     = "_event"
	EventIDKey       = "_eventid"
	EventGameLoopKey = "_gameloop"
	EventUserIDKey   = "_userid"
	EventBitsKey     = "_bits"
)

// Event is one record decoded from an event stream: the event struct's
// fields, followed by the stream bookkeeping keys.
type Event struct {
	Entries []Entry
}

// Get returns the first entry called name.
func (e *Event) Get(name string) (Value, bool) {
	for _, ent := range e.Entries {
		if ent.Name == name {
			return ent.Value, true
		}
	}
	return Value{}, false
}

// Name returns the event's type name.
func (e *Event) Name() string {
	v, _ := e.Get(EventNameKey)
	return v.Str
}

// ID returns the event's type ID.
func (e *Event) ID() int64 { return e.intEntry(EventIDKey) }

// GameLoop returns the game loop at which the event occurred.
func (e *Event) GameLoop() int64 { return e.intEntry(EventGameLoopKey) }

// Bits returns the number of bits the event occupied in its stream.
func (e *Event) Bits() int64 { return e.intEntry(EventBitsKey) }

// UserID returns the ID of the user that generated the event. Tracker events
// have no user, and return false.
func (e *Event) UserID() (int64, bool) {
	v, ok := e.Get(EventUserIDKey)
	if !ok {
		return 0, false
	}
	if v.Kind == ValueStruct && len(v.Fields) == 1 {
		v = v.Fields[0].Value
	}
	return v.AsInt()
}

func (e *Event) intEntry(name string) int64 {
	v, _ := e.Get(name)
	return v.Int
}

// Struct returns the event as a Struct value.
func (e *Event) Struct() Value { return StructValue(e.Entries...) }
