// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Streams is a set of optional replay files to decode.
//
// The header and details are always decoded.
type Streams uint

const (
	// StreamInitData decodes the init data blob.
	StreamInitData Streams = 1 << iota
	// StreamTracker decodes tracker events.
	StreamTracker
	// StreamGame decodes game events.
	StreamGame
	// StreamMessage decodes message events.
	StreamMessage
	// StreamAttributes decodes attributes events.
	StreamAttributes
	// StreamMetadata decodes the game metadata document.
	StreamMetadata

	// StreamsNone decodes no optional files.
	StreamsNone Streams = 0
	// StreamsAll decodes every optional file.
	StreamsAll = StreamInitData | StreamTracker | StreamGame | StreamMessage | StreamAttributes | StreamMetadata
	// DefaultStreams is the set used when a Config does not name one. Game and
	// message events are large and are left out.
	DefaultStreams = StreamInitData | StreamTracker | StreamAttributes | StreamMetadata
)

var streamNames = []struct {
	s    Streams
	name string
}{
	{StreamInitData, "initdata"},
	{StreamTracker, "tracker"},
	{StreamGame, "game"},
	{StreamMessage, "message"},
	{StreamAttributes, "attributes"},
	{StreamMetadata, "metadata"},
}

// Has returns true if every stream in o is in s.
func (s Streams) Has(o Streams) bool { return s&o == o }

func (s Streams) String() string {
	switch s {
	case StreamsNone:
		return "none"
	case StreamsAll:
		return "all"
	}

	parts := make([]string, 0, len(streamNames))
	for _, sn := range streamNames {
		if s.Has(sn.s) {
			parts = append(parts, sn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseStreams parses a comma-separated list of stream names. The special
// names "all" and "none" may be used alone.
func ParseStreams(v string) (Streams, error) {
	switch v {
	case "all":
		return StreamsAll, nil
	case "none", "":
		return StreamsNone, nil
	}

	var s Streams
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)

		found := false
		for _, sn := range streamNames {
			if sn.name == part {
				s |= sn.s
				found = true
				break
			}
		}
		if !found {
			return 0, errors.Errorf("unknown stream: %q", part)
		}
	}
	return s, nil
}

// StreamsFlag is a pflag.Value implementation that stores a Streams value.
type StreamsFlag Streams

var _ pflag.Value = (*StreamsFlag)(nil)

func (sf *StreamsFlag) String() string { return Streams(*sf).String() }

// Set implements pflag.Value.
func (sf *StreamsFlag) Set(v string) error {
	s, err := ParseStreams(v)
	if err != nil {
		return err
	}
	*sf = StreamsFlag(s)
	return nil
}

// Type implements pflag.Value.
func (sf *StreamsFlag) Type() string { return "replay.Streams" }

// Value returns the Streams value held by this flag.
func (sf StreamsFlag) Value() Streams { return Streams(sf) }

// StreamsFlagValues returns the list of possible values for a StreamsFlag.
func StreamsFlagValues() string {
	opts := make([]string, 0, len(streamNames)+2)
	for _, sn := range streamNames {
		opts = append(opts, sn.name)
	}
	opts = append(opts, "all", "none")
	return strings.Join(opts, ", ")
}
