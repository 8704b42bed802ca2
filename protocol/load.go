// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// protocolFile is the YAML form of a Protocol.
//
//	build: 80949
//	typeinfos:
//	  - {kind: int, bounds: [0, 7]}
//	  - {kind: struct, fields: [{name: m_x, type: 0, tag: 0}]}
//	typeids:
//	  tracker_eventid: 0
//	tracker_events:
//	  - {id: 1, type: 1, name: NNet.Replay.Tracker.SUnitBornEvent}
type protocolFile struct {
	Build     int            `yaml:"build"`
	TypeInfos []typeInfoFile `yaml:"typeinfos"`
	TypeIDs   typeIDsFile    `yaml:"typeids"`

	GameEvents    []eventTypeFile `yaml:"game_events"`
	MessageEvents []eventTypeFile `yaml:"message_events"`
	TrackerEvents []eventTypeFile `yaml:"tracker_events"`
}

type typeInfoFile struct {
	Kind    string       `yaml:"kind"`
	Bounds  []int64      `yaml:"bounds"`
	Elem    *int         `yaml:"elem"`
	Options []optionFile `yaml:"options"`
	Fields  []fieldFile  `yaml:"fields"`
}

type optionFile struct {
	Tag  int64  `yaml:"tag"`
	Name string `yaml:"name"`
	Type int    `yaml:"type"`
}

type fieldFile struct {
	Name string `yaml:"name"`
	Type int    `yaml:"type"`
	Tag  int64  `yaml:"tag"`
}

type typeIDsFile struct {
	SVarUint32     *int `yaml:"svaruint32"`
	ReplayUserID   *int `yaml:"replay_userid"`
	GameEventID    *int `yaml:"game_eventid"`
	MessageEventID *int `yaml:"message_eventid"`
	TrackerEventID *int `yaml:"tracker_eventid"`
	Header         *int `yaml:"header"`
	Details        *int `yaml:"details"`
	InitData       *int `yaml:"initdata"`
}

type eventTypeFile struct {
	ID   int64  `yaml:"id"`
	Type int    `yaml:"type"`
	Name string `yaml:"name"`
}

// LoadProtocol reads a Protocol from its YAML form and validates it.
func LoadProtocol(r io.Reader) (*Protocol, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pf protocolFile
	if err := dec.Decode(&pf); err != nil {
		return nil, errors.Wrap(err, "decoding protocol YAML")
	}

	p, err := pf.toProtocol()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating protocol %d", p.Build)
	}
	return p, nil
}

// LoadProtocolFile reads a Protocol from the YAML file at path.
func LoadProtocolFile(path string) (*Protocol, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer fd.Close()

	p, err := LoadProtocol(fd)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %q", path)
	}
	return p, nil
}

func (pf *protocolFile) toProtocol() (*Protocol, error) {
	p := Protocol{
		Build:   pf.Build,
		Schema:  make(Schema, len(pf.TypeInfos)),
		TypeIDs: pf.TypeIDs.toTypeIDs(),
	}

	for i := range pf.TypeInfos {
		if err := pf.TypeInfos[i].toTypeInfo(&p.Schema[i]); err != nil {
			return nil, errors.Wrapf(err, "type %d", i)
		}
	}

	var err error
	if p.GameEvents, err = eventTable(pf.GameEvents); err != nil {
		return nil, errors.Wrap(err, "game events")
	}
	if p.MessageEvents, err = eventTable(pf.MessageEvents); err != nil {
		return nil, errors.Wrap(err, "message events")
	}
	if p.TrackerEvents, err = eventTable(pf.TrackerEvents); err != nil {
		return nil, errors.Wrap(err, "tracker events")
	}
	return &p, nil
}

func (tf *typeInfoFile) toTypeInfo(ti *TypeInfo) error {
	kind, err := ParseKind(tf.Kind)
	if err != nil {
		return err
	}
	ti.Kind = kind
	ti.Elem = NoType

	switch len(tf.Bounds) {
	case 0:
	case 2:
		if tf.Bounds[1] < 0 {
			return errors.Errorf("negative bit width %d", tf.Bounds[1])
		}
		ti.Bounds = Bounds{Offset: tf.Bounds[0], Bits: uint(tf.Bounds[1])}
	default:
		return errors.Errorf("bounds must be [offset, bits], got %v", tf.Bounds)
	}

	if tf.Elem != nil {
		ti.Elem = TypeID(*tf.Elem)
	}
	for _, o := range tf.Options {
		ti.Options = append(ti.Options, ChoiceOption{Tag: o.Tag, Name: o.Name, Type: TypeID(o.Type)})
	}
	for _, f := range tf.Fields {
		ti.Fields = append(ti.Fields, Field{Name: f.Name, Type: TypeID(f.Type), Tag: f.Tag})
	}
	return nil
}

func (tf *typeIDsFile) toTypeIDs() TypeIDs {
	id := func(v *int) TypeID {
		if v == nil {
			return NoType
		}
		return TypeID(*v)
	}
	return TypeIDs{
		SVarUint32:     id(tf.SVarUint32),
		ReplayUserID:   id(tf.ReplayUserID),
		GameEventID:    id(tf.GameEventID),
		MessageEventID: id(tf.MessageEventID),
		TrackerEventID: id(tf.TrackerEventID),
		Header:         id(tf.Header),
		Details:        id(tf.Details),
		InitData:       id(tf.InitData),
	}
}

func eventTable(entries []eventTypeFile) (map[int64]EventType, error) {
	table := make(map[int64]EventType, len(entries))
	for _, e := range entries {
		if prev, ok := table[e.ID]; ok {
			return nil, errors.Errorf("event ID %d is declared as both %s and %s", e.ID, prev.Name, e.Name)
		}
		table[e.ID] = EventType{Type: TypeID(e.Type), Name: e.Name}
	}
	return table, nil
}
