// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"io"
	"time"

	"github.com/danjacques/gos2replay/mpq"
	"github.com/danjacques/gos2replay/protocol"
	"github.com/danjacques/gos2replay/support/errkind"
	"github.com/danjacques/gos2replay/support/fmtutil"
	"github.com/danjacques/gos2replay/support/logging"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Names of the files inside of a replay archive.
const (
	DetailsFile          = "replay.details"
	InitDataFile         = "replay.initData"
	TrackerEventsFile    = "replay.tracker.events"
	GameEventsFile       = "replay.game.events"
	MessageEventsFile    = "replay.message.events"
	AttributesEventsFile = "replay.attributes.events"
	MetadataFile         = "replay.gamemetadata.json"
)

// Replay is the decoded content of a replay archive.
//
// Optional content that was not requested, or that the archive does not
// contain, is left nil.
type Replay struct {
	// Path is the path that the replay was opened from. It may be a
	// descriptive name if the replay was opened from a reader.
	Path string

	// Build is the base build named by the replay's header.
	Build int
	// Protocol is the protocol used to decode the replay. Its Build may
	// differ from Build if the Config falls back to the latest protocol.
	Protocol *protocol.Protocol

	Header   protocol.Value
	Details  protocol.Value
	InitData *protocol.Value

	TrackerEvents []*protocol.Event
	GameEvents    []*protocol.Event
	MessageEvents []*protocol.Event
	Attributes    *protocol.Attributes

	Metadata *Metadata
	// RawMetadata is the undecoded metadata document.
	RawMetadata []byte
}

// Config configures how replays are opened and decoded.
type Config struct {
	// Registry holds the protocols used to decode replays. It must not be
	// nil, and must contain at least one protocol.
	Registry *protocol.Registry

	// Logger, if not nil, is used to log decoding progress.
	Logger logging.L

	// FallbackToLatest, if true, decodes a replay whose build has no
	// registered protocol using the latest registered protocol.
	FallbackToLatest bool

	// Streams is the set of optional files to decode. If zero,
	// DefaultStreams is used.
	Streams Streams
	// NoStreams, if true, decodes only the header and details.
	NoStreams bool

	// AllowEvent, if not nil, filters the events of every decoded event
	// stream by name.
	AllowEvent func(name string) bool
}

func (cfg *Config) streams() Streams {
	switch {
	case cfg.NoStreams:
		return StreamsNone
	case cfg.Streams == StreamsNone:
		return DefaultStreams
	default:
		return cfg.Streams
	}
}

// Open opens and decodes the replay file at path.
func (cfg *Config) Open(path string) (*Replay, error) {
	logger := logging.Must(cfg.Logger)

	replaysOpened.Inc()
	a, err := mpq.Open(path, logger)
	if err != nil {
		replayErrors.WithLabelValues(errkind.Of(err).String()).Inc()
		return nil, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("Failed to close replay %q: %s", path, err)
		}
	}()

	return cfg.decodeAndRecord(path, a)
}

// OpenReader decodes the replay archive in r. name is used to identify the
// replay in logs and in the returned Replay's Path.
func (cfg *Config) OpenReader(name string, r io.ReadSeeker) (*Replay, error) {
	replaysOpened.Inc()
	a, err := mpq.NewArchive(r, logging.Prefix(logging.Must(cfg.Logger), name))
	if err != nil {
		replayErrors.WithLabelValues(errkind.Of(err).String()).Inc()
		return nil, err
	}
	return cfg.decodeAndRecord(name, a)
}

func (cfg *Config) decodeAndRecord(path string, a *mpq.Archive) (*Replay, error) {
	timer := prometheus.NewTimer(replayDecodeSeconds)
	defer timer.ObserveDuration()

	rp, err := cfg.decode(path, a)
	if err != nil {
		replayErrors.WithLabelValues(errkind.Of(err).String()).Inc()
		return nil, errors.Wrapf(err, "decoding %q", path)
	}
	replaysDecoded.Inc()
	return rp, nil
}

func (cfg *Config) decode(path string, a *mpq.Archive) (*Replay, error) {
	if cfg.Registry == nil {
		return nil, errors.New("no protocol registry")
	}
	logger := logging.Must(cfg.Logger)
	start := time.Now()

	// The header lives in the archive's user data, and is decodable by any
	// protocol.
	ud := a.UserData()
	if ud == nil {
		return nil, errors.Wrap(errkind.ErrCorrupted, "archive has no user data header")
	}
	latest := cfg.Registry.Latest()
	if latest == nil {
		return nil, errors.New("protocol registry is empty")
	}

	rp := Replay{
		Path: path,
	}

	var err error
	if rp.Header, err = latest.DecodeHeader(ud.Content); err != nil {
		logger.Debugf("Undecodable header:\n%s", fmtutil.Hex(ud.Content))
		return nil, errors.Wrap(err, "decoding header")
	}

	var ok bool
	if rp.Build, ok = protocol.BaseBuild(rp.Header); !ok {
		return nil, errors.Wrap(errkind.ErrCorrupted, "header has no base build")
	}
	if rp.Protocol, err = cfg.Registry.Resolve(rp.Build, cfg.FallbackToLatest); err != nil {
		return nil, err
	}
	if rp.Protocol.Build != rp.Build {
		logger.Warnf("No protocol for build %d; decoding with build %d.", rp.Build, rp.Protocol.Build)
	}
	p := rp.Protocol

	// Details are required.
	buf, err := cfg.readFile(a, DetailsFile)
	if err != nil {
		return nil, err
	}
	if rp.Details, err = p.DecodeDetails(buf); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", DetailsFile)
	}

	streams := cfg.streams()
	if streams.Has(StreamInitData) {
		err := cfg.readOptional(a, InitDataFile, func(buf []byte) error {
			v, err := p.DecodeInitData(buf)
			if err != nil {
				return err
			}
			rp.InitData = &v
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	eventStreams := []struct {
		s      Streams
		file   string
		label  string
		open   func([]byte) *protocol.EventStream
		target *[]*protocol.Event
	}{
		{StreamTracker, TrackerEventsFile, "tracker", p.TrackerEventStream, &rp.TrackerEvents},
		{StreamGame, GameEventsFile, "game", p.GameEventStream, &rp.GameEvents},
		{StreamMessage, MessageEventsFile, "message", p.MessageEventStream, &rp.MessageEvents},
	}
	for _, es := range eventStreams {
		if !streams.Has(es.s) {
			continue
		}

		es := es
		err := cfg.readOptional(a, es.file, func(buf []byte) error {
			stream := es.open(buf)
			stream.Allow = cfg.AllowEvent

			events, err := protocol.ReadAll(stream)
			if err != nil {
				off := stream.Offset()
				logger.Debugf("%s failed at byte %d of %d: %s", es.file, off, len(buf), fmtutil.Window(buf, off, 16))
				return err
			}
			replayEvents.WithLabelValues(es.label).Add(float64(len(events)))
			*es.target = events
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if streams.Has(StreamAttributes) {
		err := cfg.readOptional(a, AttributesEventsFile, func(buf []byte) (err error) {
			rp.Attributes, err = protocol.DecodeAttributesEvents(buf)
			return
		})
		if err != nil {
			return nil, err
		}
	}

	if streams.Has(StreamMetadata) {
		err := cfg.readOptional(a, MetadataFile, func(buf []byte) (err error) {
			rp.RawMetadata = buf
			rp.Metadata, err = ParseMetadata(buf)
			return
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debugf("Decoded replay %q (build %d) in %s.", path, rp.Build, time.Since(start))
	return &rp, nil
}

func (cfg *Config) readFile(a *mpq.Archive, name string) ([]byte, error) {
	buf, err := a.ReadFile(name, false)
	if err != nil {
		return nil, err
	}
	replayFileBytes.WithLabelValues(name).Add(float64(len(buf)))
	return buf, nil
}

// readOptional reads the file called name and passes it to fn. A file that is
// not in the archive is skipped.
func (cfg *Config) readOptional(a *mpq.Archive, name string, fn func([]byte) error) error {
	buf, err := cfg.readFile(a, name)
	switch errors.Cause(err) {
	case nil:
	case mpq.ErrFileNotFound:
		logging.Must(cfg.Logger).Debugf("Replay has no %s; skipping.", name)
		return nil
	default:
		return err
	}

	if err := fn(buf); err != nil {
		return errors.Wrapf(err, "decoding %s", name)
	}
	return nil
}
