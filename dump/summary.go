// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dump

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/danjacques/gos2replay/protocol"
	"github.com/danjacques/gos2replay/replay"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// loopsPerSecond is the number of game loops per real-time second at the
// "faster" game speed.
const loopsPerSecond = 22.4

type playerSummary struct {
	Name   string  `yaml:"name"`
	Race   string  `yaml:"race,omitempty"`
	Result string  `yaml:"result,omitempty"`
	APM    float64 `yaml:"apm,omitempty"`
}

type summary struct {
	Path          string          `yaml:"path"`
	Build         int             `yaml:"build"`
	ProtocolBuild int             `yaml:"protocol_build"`
	Title         string          `yaml:"title,omitempty"`
	GameLoops     int64           `yaml:"game_loops"`
	Duration      time.Duration   `yaml:"duration"`
	Players       []playerSummary `yaml:"players,omitempty"`
	Events        map[string]int  `yaml:"events,omitempty"`
}

func summarize(rp *replay.Replay) *summary {
	s := summary{
		Path:          rp.Path,
		Build:         rp.Build,
		ProtocolBuild: rp.Protocol.Build,
	}

	if v, ok := rp.Header.Field("m_elapsedGameLoops"); ok {
		s.GameLoops, _ = v.AsInt()
		s.Duration = (time.Duration(float64(s.GameLoops)/loopsPerSecond*1000) * time.Millisecond).Round(time.Second)
	}

	if v, ok := rp.Details.Field("m_title"); ok {
		s.Title, _ = v.AsString()
	}
	if s.Title == "" && rp.Metadata != nil {
		s.Title = rp.Metadata.Title
	}

	if players, ok := rp.Details.Field("m_playerList"); ok {
		for i, pv := range players.Items {
			var ps playerSummary
			if v, ok := pv.Field("m_name"); ok {
				ps.Name, _ = v.AsString()
			}
			if v, ok := pv.Field("m_race"); ok {
				ps.Race, _ = v.AsString()
			}

			// Metadata player IDs count from 1, in player list order.
			if rp.Metadata != nil {
				if pm := rp.Metadata.Player(i + 1); pm != nil {
					ps.Result = pm.Result
					ps.APM = pm.APM
				}
			}
			s.Players = append(s.Players, ps)
		}
	}

	s.Events = make(map[string]int)
	for _, events := range [][]*protocol.Event{rp.TrackerEvents, rp.GameEvents, rp.MessageEvents} {
		for _, e := range events {
			s.Events[e.Name()]++
		}
	}
	return &s
}

type writer interface {
	write(s *summary) error
	close() error
}

type textWriter struct {
	out io.Writer
}

func (w *textWriter) write(s *summary) error {
	if _, err := fmt.Fprintf(w.out, "%s\n  build %d (protocol %d), %q, %s (%s loops)\n",
		s.Path, s.Build, s.ProtocolBuild, s.Title, s.Duration, humanize.Comma(s.GameLoops)); err != nil {
		return err
	}

	for _, ps := range s.Players {
		if _, err := fmt.Fprintf(w.out, "  player %q: %s %s (APM %.0f)\n", ps.Name, ps.Race, ps.Result, ps.APM); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(s.Events))
	for name := range s.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w.out, "  %8s %s\n", humanize.Comma(int64(s.Events[name])), name); err != nil {
			return err
		}
	}
	return nil
}

func (w *textWriter) close() error { return nil }

// yamlWriter writes each summary as a document in a YAML stream.
type yamlWriter struct {
	out io.Writer
	enc *yaml.Encoder
}

func (w *yamlWriter) write(s *summary) error {
	if w.enc == nil {
		w.enc = yaml.NewEncoder(w.out)
		w.enc.SetIndent(2)
	}
	return w.enc.Encode(s)
}

func (w *yamlWriter) close() error {
	if w.enc == nil {
		return nil
	}
	return w.enc.Close()
}
