// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// TypeIDs names the types of a Schema that the stream decoders start from.
// A type a protocol does not define is NoType.
type TypeIDs struct {
	// SVarUint32 is the choice type of a game loop delta.
	SVarUint32 TypeID
	// ReplayUserID is the type of the user ID that precedes game and message
	// events.
	ReplayUserID TypeID

	GameEventID    TypeID
	MessageEventID TypeID
	TrackerEventID TypeID

	Header   TypeID
	Details  TypeID
	InitData TypeID
}

// NoTypeIDs returns a TypeIDs with every type set to NoType.
func NoTypeIDs() TypeIDs {
	return TypeIDs{
		SVarUint32:     NoType,
		ReplayUserID:   NoType,
		GameEventID:    NoType,
		MessageEventID: NoType,
		TrackerEventID: NoType,
		Header:         NoType,
		Details:        NoType,
		InitData:       NoType,
	}
}

// EventType is the decodable type and name of an event ID.
type EventType struct {
	Type TypeID
	Name string
}

// Protocol is the schema and stream layout of one game build.
//
// A Protocol is immutable once loaded, and may be shared between goroutines.
type Protocol struct {
	// Build is the base build that this protocol describes.
	Build int

	Schema  Schema
	TypeIDs TypeIDs

	GameEvents    map[int64]EventType
	MessageEvents map[int64]EventType
	TrackerEvents map[int64]EventType
}

// Validate checks that p's schema is consistent, and that every type it
// names exists.
func (p *Protocol) Validate() error {
	if err := p.Schema.Validate(); err != nil {
		return err
	}

	ids := []struct {
		name string
		id   TypeID
	}{
		{"svaruint32", p.TypeIDs.SVarUint32},
		{"replay_userid", p.TypeIDs.ReplayUserID},
		{"game_eventid", p.TypeIDs.GameEventID},
		{"message_eventid", p.TypeIDs.MessageEventID},
		{"tracker_eventid", p.TypeIDs.TrackerEventID},
		{"header", p.TypeIDs.Header},
		{"details", p.TypeIDs.Details},
		{"initdata", p.TypeIDs.InitData},
	}
	for _, e := range ids {
		if e.id != NoType && !p.Schema.Has(e.id) {
			return errors.Wrapf(errkind.ErrCorrupted, "%s type %d is not in the schema", e.name, e.id)
		}
	}

	for name, table := range map[string]map[int64]EventType{
		"game":    p.GameEvents,
		"message": p.MessageEvents,
		"tracker": p.TrackerEvents,
	} {
		for id, et := range table {
			if !p.Schema.Has(et.Type) {
				return errors.Wrapf(errkind.ErrCorrupted, "%s event %d (%s) has unknown type %d", name, id, et.Name, et.Type)
			}
		}
	}
	return nil
}

// DecodeHeader decodes the replay header held in an archive's user data.
func (p *Protocol) DecodeHeader(buf []byte) (Value, error) {
	return p.decodeSingle(NewVersionedDecoder(buf, p.Schema), p.TypeIDs.Header, "header")
}

// DecodeDetails decodes the replay.details file.
func (p *Protocol) DecodeDetails(buf []byte) (Value, error) {
	return p.decodeSingle(NewVersionedDecoder(buf, p.Schema), p.TypeIDs.Details, "details")
}

// DecodeInitData decodes the replay.initData file.
func (p *Protocol) DecodeInitData(buf []byte) (Value, error) {
	return p.decodeSingle(NewBitPackedDecoder(buf, p.Schema), p.TypeIDs.InitData, "init data")
}

func (p *Protocol) decodeSingle(d *Decoder, id TypeID, what string) (Value, error) {
	if id == NoType {
		return Value{}, errors.Wrapf(errkind.ErrCorrupted, "protocol %d has no %s type", p.Build, what)
	}
	v, err := d.Instance(id)
	if err != nil {
		return Value{}, errors.Wrapf(err, "decoding %s", what)
	}
	return v, nil
}

// BaseBuild returns the base build recorded in a decoded replay header.
func BaseBuild(header Value) (int, bool) {
	v, ok := header.Path("m_version", "m_baseBuild")
	if !ok {
		return 0, false
	}
	build, ok := v.AsInt()
	return int(build), ok
}
