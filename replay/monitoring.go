// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	replaysOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "s2replay_replays_opened",
		Help: "Count of replays opened for decoding.",
	})

	replaysDecoded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "s2replay_replays_decoded",
		Help: "Count of replays decoded successfully.",
	})

	replayErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "s2replay_replay_errors",
		Help: "Count of replays that failed to decode, by failure kind.",
	}, []string{"kind"})

	replayFileBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "s2replay_file_bytes",
		Help: "Count of bytes read from archive files, by file.",
	}, []string{"file"})

	replayEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "s2replay_events",
		Help: "Count of decoded events, by stream.",
	}, []string{"stream"})

	replayDecodeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "s2replay_decode_seconds",
		Help:    "Time taken to decode a replay.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	batchActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "s2replay_batch_active",
		Help: "Count of replays currently being decoded by batch workers.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Decoding
		replaysOpened,
		replaysDecoded,
		replayErrors,
		replayFileBytes,
		replayEvents,
		replayDecodeSeconds,

		// Batch
		batchActiveGauge,
	)
}
