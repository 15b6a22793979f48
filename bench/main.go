// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command bench drives a single worker with a closed-loop Store load and
// reports latency percentiles, the way the teacher's own bench package
// compared WAL against Bolt append throughput — here there is only one
// backend (logstore/boltstore) so the benchmark reports on it directly
// instead of racing two candidates.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	hist "github.com/HdrHistogram/hdrhistogram-go"
	benchlib "github.com/benmathews/bench"
	hwriter "github.com/benmathews/hdrhistogram-writer"

	"github.com/logletserver/loglet/logstore/boltstore"
	"github.com/logletserver/loglet/rpcenvelope"
	"github.com/logletserver/loglet/tailtracker"
	"github.com/logletserver/loglet/types"
	"github.com/logletserver/loglet/worker"
)

func main() {
	dbPath := flag.String("db", "", "bbolt database path (defaults to a temp file)")
	requestRate := flag.Uint64("rate", 1000, "requests per second")
	requestTotal := flag.Uint64("total", 20000, "total requests to issue")
	concurrency := flag.Uint64("concurrency", 8, "concurrent requesters")
	out := flag.String("out", "store_latency.hgrm", "histogram report output path")
	flag.Parse()

	path := *dbPath
	if path == "" {
		dir, err := os.MkdirTemp("", "loglet-bench-*")
		if err != nil {
			log.Fatal(err)
		}
		defer os.RemoveAll(dir)
		path = dir + "/loglet.db"
	}

	store, err := boltstore.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	tracker := tailtracker.New()
	handle, err := worker.Start(context.Background(), types.LogletId(1), store, tracker)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { <-handle.Cancel() }()

	req := &storeRequester{handle: handle, peer: types.GenerationalNodeId{Node: 1, Generation: 1}}
	b := benchlib.NewBenchmark(req, *requestRate, *requestTotal, *concurrency)
	summary := b.Run()

	fmt.Printf("issued=%d rate=%d concurrency=%d\n", *requestTotal, *requestRate, *concurrency)
	if err := hwriter.WriteDistributionFile(summary, nil, 1.0, *out); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("p50=%dus p99=%dus max=%dus, report written to %s\n",
		summary.ValueAtQuantile(50), summary.ValueAtQuantile(99), summary.Max(), *out)
}

// storeRequester issues one Store request per call, each with a single
// small payload, and reports the round trip from enqueue to response.
type storeRequester struct {
	handle *worker.Handle
	peer   types.GenerationalNodeId
	offset types.Offset
}

func (r *storeRequester) Setup() error {
	r.offset = types.OldestOffset
	return nil
}

func (r *storeRequester) Teardown() error { return nil }

func (r *storeRequester) Send() (*hist.Histogram, error) {
	h := hist.New(1, int64(time.Minute/time.Microsecond), 3)

	env := rpcenvelope.New(r.peer, types.StoreRequest{
		Sequencer:   r.peer,
		FirstOffset: r.offset,
		Payloads:    [][]byte{make([]byte, 128)},
	})
	start := time.Now()
	if !r.handle.EnqueueStore(env) {
		return h, fmt.Errorf("store inbox full")
	}
	resp := env.Response().(types.StoredResponse)
	if resp.Status != types.StatusOk {
		return h, fmt.Errorf("store rejected: %s", resp.Status)
	}
	_ = h.RecordValue(time.Since(start).Microseconds())
	r.offset = resp.LocalTail
	return h, nil
}
