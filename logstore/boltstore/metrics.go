// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package boltstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	bytesWritten    prometheus.Counter
	recordsWritten  prometheus.Counter
	stores          prometheus.Counter
	seals           prometheus.Counter
	trims           *prometheus.CounterVec
	recordsRead     prometheus.Counter
	recordBytesRead prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_store_bytes_written",
			Help: "bytes_written counts the bytes of record payload persisted, before the offset/key header.",
		}),
		recordsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_store_records_written",
			Help: "records_written counts the number of records persisted.",
		}),
		stores: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_store_append_batches",
			Help: "append_batches counts the number of store batches committed.",
		}),
		seals: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_store_seals",
			Help: "seals counts the number of seals committed.",
		}),
		trims: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loglet_store_trims",
			Help: "trims counts committed trims by whether they advanced the persisted trim point.",
		}, []string{"advanced"}),
		recordsRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_store_records_read",
			Help: "records_read counts records returned from ReadRecords.",
		}),
		recordBytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loglet_store_record_bytes_read",
			Help: "record_bytes_read counts bytes of payload returned from ReadRecords.",
		}),
	}
}
