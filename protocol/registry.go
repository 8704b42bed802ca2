// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownBuild is returned when no protocol is registered for a build.
var ErrUnknownBuild = errors.New("no protocol for build")

// Registry holds the protocols of known builds.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	protocols map[int]*Protocol
	latest    *Protocol
}

// Add registers p. It is an error to register the same build twice.
func (reg *Registry) Add(p *Protocol) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.protocols[p.Build]; ok {
		return errors.Errorf("protocol for build %d is already registered", p.Build)
	}
	if reg.protocols == nil {
		reg.protocols = make(map[int]*Protocol)
	}
	reg.protocols[p.Build] = p

	if reg.latest == nil || p.Build > reg.latest.Build {
		reg.latest = p
	}
	return nil
}

// LoadDir loads and registers every protocol file (*.yaml, *.yml) in dir.
func (reg *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading protocol directory %q", dir)
	}

	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}

		p, err := LoadProtocolFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := reg.Add(p); err != nil {
			return errors.Wrapf(err, "registering %q", name)
		}
	}
	return nil
}

// Get returns the protocol for build, or nil if there is none.
func (reg *Registry) Get(build int) *Protocol {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.protocols[build]
}

// Latest returns the protocol of the newest registered build, or nil if the
// Registry is empty.
func (reg *Registry) Latest() *Protocol {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.latest
}

// Resolve returns the protocol for build. If there is none and fallback is
// true, the latest protocol is returned instead.
func (reg *Registry) Resolve(build int, fallback bool) (*Protocol, error) {
	if p := reg.Get(build); p != nil {
		return p, nil
	}
	if fallback {
		if p := reg.Latest(); p != nil {
			return p, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownBuild, "%d", build)
}

// Builds returns the registered builds, in ascending order.
func (reg *Registry) Builds() []int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	builds := make([]int, 0, len(reg.protocols))
	for b := range reg.protocols {
		builds = append(builds, b)
	}
	sort.Ints(builds)
	return builds
}
