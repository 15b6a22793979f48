// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type workerMetrics struct {
	storesAccepted  *prometheus.CounterVec
	sealsCompleted  prometheus.Counter
	trimsCompleted  *prometheus.CounterVec
	readsDispatched prometheus.Counter
	infoDropped     prometheus.Counter
}

func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	return &workerMetrics{
		storesAccepted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loglet_worker_store_responses",
			Help: "store_responses counts Store responses by status.",
		}, []string{"status"}),
		sealsCompleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_worker_seals_completed",
			Help: "seals_completed counts seal notifications fired.",
		}),
		trimsCompleted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loglet_worker_trim_responses",
			Help: "trim_responses counts Trim responses by status.",
		}, []string{"status"}),
		readsDispatched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_worker_reads_dispatched",
			Help: "reads_dispatched counts GetRecords requests handed to a disposable read task.",
		}),
		infoDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_worker_info_responses_dropped",
			Help: "info_responses_dropped counts GetLogletInfo responses dropped due to peer congestion.",
		}),
	}
}
