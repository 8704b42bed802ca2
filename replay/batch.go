// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// OpenFunc receives the result of opening one replay in OpenAll. If it returns
// an error, OpenAll stops and returns that error.
type OpenFunc func(path string, rp *Replay, err error) error

// OpenAll opens and decodes each replay in paths, using up to workers
// goroutines. If workers is <= 0, one goroutine is used.
//
// fn is called once per path, including for replays that failed to decode.
// Calls to fn are serialized, but are made in completion order rather than in
// the order of paths.
//
// OpenAll returns when every path has been visited, when fn returns an error,
// or when ctx is cancelled.
func (cfg *Config) OpenAll(c context.Context, paths []string, workers int, fn OpenFunc) error {
	if workers <= 0 {
		workers = 1
	}

	eg, egc := errgroup.WithContext(c)
	eg.SetLimit(workers)

	var fnMu sync.Mutex
	for _, path := range paths {
		if egc.Err() != nil {
			break
		}

		path := path
		eg.Go(func() error {
			if err := egc.Err(); err != nil {
				return err
			}

			batchActiveGauge.Inc()
			rp, err := cfg.Open(path)
			batchActiveGauge.Dec()

			fnMu.Lock()
			defer fnMu.Unlock()
			return fn(path, rp, err)
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	return c.Err()
}
