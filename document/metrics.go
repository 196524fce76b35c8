// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDocumentsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "loom",
		Name:      "documents_open",
		Help:      "Number of document sessions currently open.",
	})

	metricPatchesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "patches_applied_total",
		Help:      "Total number of patches applied to document trees.",
	})

	metricCompiles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "compiles_total",
		Help:      "Total number of compile passes.",
	})

	metricExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "executions_total",
		Help:      "Total number of executed plan steps by outcome.",
	}, []string{"outcome"})

	metricExecuteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "loom",
		Name:      "execute_duration_seconds",
		Help:      "Duration of whole plan executions.",
		Buckets:   prometheus.DefBuckets,
	})

	metricWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "writes_total",
		Help:      "Total number of document files written.",
	})
)
