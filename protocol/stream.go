// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"io"

	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// EventStream reads events from an event stream file.
//
// Each event is prefixed by the game loop delta since the previous event,
// optionally the user ID that generated it, and its event ID. Events are
// byte-aligned.
//
// EventStream must be instantiated using one of Protocol's stream methods.
// After instantiation, Allow can be set to control which events are
// returned. EventStream is not safe for concurrent use.
type EventStream struct {
	// Allow, if not nil, is called with each event's name. Events for which
	// it returns false are consumed without being materialized, and are not
	// returned by ReadEvent.
	Allow func(name string) bool

	p       *Protocol
	dec     *Decoder
	events  map[int64]EventType
	eventID TypeID
	userID  TypeID

	gameLoop int64
}

// TrackerEventStream returns an EventStream over a replay.tracker.events file.
func (p *Protocol) TrackerEventStream(buf []byte) *EventStream {
	return p.newEventStream(NewVersionedDecoder(buf, p.Schema), p.TrackerEvents, p.TypeIDs.TrackerEventID, NoType)
}

// GameEventStream returns an EventStream over a replay.game.events file.
func (p *Protocol) GameEventStream(buf []byte) *EventStream {
	return p.newEventStream(NewBitPackedDecoder(buf, p.Schema), p.GameEvents, p.TypeIDs.GameEventID, p.TypeIDs.ReplayUserID)
}

// MessageEventStream returns an EventStream over a replay.message.events file.
func (p *Protocol) MessageEventStream(buf []byte) *EventStream {
	return p.newEventStream(NewBitPackedDecoder(buf, p.Schema), p.MessageEvents, p.TypeIDs.MessageEventID, p.TypeIDs.ReplayUserID)
}

func (p *Protocol) newEventStream(dec *Decoder, events map[int64]EventType, eventID, userID TypeID) *EventStream {
	return &EventStream{
		p:       p,
		dec:     dec,
		events:  events,
		eventID: eventID,
		userID:  userID,
	}
}

// GameLoop returns the game loop of the latest event read.
func (es *EventStream) GameLoop() int64 { return es.gameLoop }

// Offset returns the byte offset of the stream's read position.
func (es *EventStream) Offset() int { return es.dec.UsedBits() / 8 }

// ReadEvent returns the next event in the stream.
//
// If the end of the stream is encountered, ReadEvent will return io.EOF. Any
// other error is terminal: the stream's alignment can no longer be trusted.
func (es *EventStream) ReadEvent() (*Event, error) {
	for !es.dec.Done() {
		e, err := es.readEvent()
		if err != nil {
			return nil, errors.Wrapf(err, "reading event at game loop %d", es.gameLoop)
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, io.EOF
}

// readEvent reads one event. It returns nil if the event was filtered.
func (es *EventStream) readEvent() (*Event, error) {
	if es.eventID == NoType || es.p.TypeIDs.SVarUint32 == NoType {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "protocol %d does not describe this event stream", es.p.Build)
	}
	start := es.dec.UsedBits()

	delta, err := es.dec.Instance(es.p.TypeIDs.SVarUint32)
	if err != nil {
		return nil, errors.Wrap(err, "decoding game loop delta")
	}
	if len(delta.Fields) != 1 || delta.Fields[0].Value.Kind != ValueInt {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "game loop delta is not an integer choice: %s", delta)
	}
	es.gameLoop += delta.Fields[0].Value.Int

	var userID Value
	if es.userID != NoType {
		if userID, err = es.dec.Instance(es.userID); err != nil {
			return nil, errors.Wrap(err, "decoding user ID")
		}
	}

	idValue, err := es.dec.Instance(es.eventID)
	if err != nil {
		return nil, errors.Wrap(err, "decoding event ID")
	}
	id, ok := idValue.AsInt()
	if !ok {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "event ID is not an integer: %s", idValue)
	}
	et, ok := es.events[id]
	if !ok {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "unknown event ID %d", id)
	}

	allow := es.Allow == nil || es.Allow(et.Name)
	v, err := es.dec.InstanceFiltered(et.Type, allow)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", et.Name)
	}
	es.dec.ByteAlign()
	if !allow {
		return nil, nil
	}
	if v.Kind != ValueStruct {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "event %s decoded as %s, not a struct", et.Name, v.Kind)
	}

	e := Event{Entries: make([]Entry, 0, len(v.Fields)+5)}
	e.Entries = append(e.Entries, v.Fields...)
	e.Entries = append(e.Entries,
		Entry{Name: EventNameKey, Value: NameValue(et.Name)},
		Entry{Name: EventIDKey, Value: IntValue(id)},
		Entry{Name: EventGameLoopKey, Value: IntValue(es.gameLoop)})
	if es.userID != NoType {
		e.Entries = append(e.Entries, Entry{Name: EventUserIDKey, Value: userID})
	}
	e.Entries = append(e.Entries, Entry{Name: EventBitsKey, Value: IntValue(int64(es.dec.UsedBits() - start))})
	return &e, nil
}

// DecodeTrackerEvents decodes every event in a replay.tracker.events file.
func (p *Protocol) DecodeTrackerEvents(buf []byte) ([]*Event, error) {
	return ReadAll(p.TrackerEventStream(buf))
}

// DecodeGameEvents decodes every event in a replay.game.events file.
func (p *Protocol) DecodeGameEvents(buf []byte) ([]*Event, error) {
	return ReadAll(p.GameEventStream(buf))
}

// DecodeMessageEvents decodes every event in a replay.message.events file.
func (p *Protocol) DecodeMessageEvents(buf []byte) ([]*Event, error) {
	return ReadAll(p.MessageEventStream(buf))
}

// ReadAll reads es until the end of its stream.
func ReadAll(es *EventStream) ([]*Event, error) {
	var events []*Event
	for {
		switch e, err := es.ReadEvent(); err {
		case nil:
			events = append(events, e)
		case io.EOF:
			return events, nil
		default:
			return nil, err
		}
	}
}
