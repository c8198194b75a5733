// Command benchmarks drives bplus.Tree and a pebble.DB through the same
// insert/get/scan/delete workload and reports mean per-operation latency,
// grounded on NikolasRummel-db-index-performance-evaluation's
// src/benchmark.go and src/main.go runSuite/Record pattern, and its
// dbms/index/lsm package's concrete pebble.DB wiring (SPEC_FULL.md §11).
package main

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tinykv/bplustree/internal/bplus"
	"github.com/tinykv/bplustree/internal/record"
)

// BenchResult mirrors the teacher's CSV row shape, plus an Engine column
// to distinguish bplus.Tree from pebble.DB in the combined report.
type BenchResult struct {
	Engine    string
	Operation string
	LatencyNs int64
	MemMB     uint64
}

func main() {
	n := 100_000
	dir, err := os.MkdirTemp("", "bplustree-bench")
	if err != nil {
		log.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	f, err := os.Create("bench_results.csv")
	if err != nil {
		log.Fatalf("create results csv: %v", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write([]string{"Engine", "Operation", "LatencyNs", "MemMB"})

	var results []BenchResult
	results = append(results, benchBPlusTree(filepath.Join(dir, "bplus.db"), n)...)
	results = append(results, benchPebble(filepath.Join(dir, "pebble"), n)...)

	for _, r := range results {
		w.Write([]string{r.Engine, r.Operation, strconv.FormatInt(r.LatencyNs, 10), strconv.FormatUint(r.MemMB, 10)})
	}
	w.Flush()

	if err := plotLatencies("bench_latency.png", results); err != nil {
		log.Printf("plot: %v (csv results still written)", err)
	}
	fmt.Println("benchmark complete: bench_results.csv, bench_latency.png")
}

func memMB() uint64 {
	runtime.GC()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}

func benchBPlusTree(dbPath string, n int) []BenchResult {
	store, err := record.Open(record.StoreConfig{DBPath: dbPath})
	if err != nil {
		log.Fatalf("bplus: open store: %v", err)
	}
	defer store.Close()

	ctx := &bplus.Context{
		Cap:                 64,
		MaxInlineRecordSize: bplus.DefaultMaxInlineRecordSize,
		LoadValues:          true,
		RecordManager:       store,
	}
	tr, err := bplus.NewTree(ctx)
	if err != nil {
		log.Fatalf("bplus: new tree: %v", err)
	}

	var out []BenchResult

	start := time.Now()
	for k := 0; k < n; k++ {
		if _, err := tr.Insert(int64(k), []byte("v"), true); err != nil {
			log.Fatalf("bplus: insert %d: %v", k, err)
		}
	}
	out = append(out, BenchResult{"bplus.Tree", "Insert", time.Since(start).Nanoseconds() / int64(n), memMB()})

	start = time.Now()
	for k := 0; k < n; k++ {
		if _, err := tr.Find(int64(k)); err != nil {
			log.Fatalf("bplus: find %d: %v", k, err)
		}
	}
	out = append(out, BenchResult{"bplus.Tree", "Get", time.Since(start).Nanoseconds() / int64(n), memMB()})

	start = time.Now()
	scanned := 0
	cur, err := tr.NewCursor(nil)
	if err != nil {
		log.Fatalf("bplus: new cursor: %v", err)
	}
	for {
		scanned++
		if err := cur.Next(); err != nil {
			break
		}
	}
	out = append(out, BenchResult{"bplus.Tree", "Scan", time.Since(start).Nanoseconds() / int64(scanned), memMB()})

	start = time.Now()
	for k := 0; k < n; k += 2 {
		if _, err := tr.Remove(int64(k)); err != nil {
			log.Fatalf("bplus: remove %d: %v", k, err)
		}
	}
	out = append(out, BenchResult{"bplus.Tree", "Delete", time.Since(start).Nanoseconds() / int64(n/2), memMB()})

	return out
}

func benchPebble(dir string, n int) []BenchResult {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		log.Fatalf("pebble: open: %v", err)
	}
	defer db.Close()

	var out []BenchResult
	encodeKey := func(k int) []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(k))
		return b
	}

	start := time.Now()
	for k := 0; k < n; k++ {
		if err := db.Set(encodeKey(k), []byte("v"), pebble.NoSync); err != nil {
			log.Fatalf("pebble: set %d: %v", k, err)
		}
	}
	out = append(out, BenchResult{"pebble.DB", "Insert", time.Since(start).Nanoseconds() / int64(n), memMB()})

	start = time.Now()
	for k := 0; k < n; k++ {
		v, closer, err := db.Get(encodeKey(k))
		if err != nil {
			log.Fatalf("pebble: get %d: %v", k, err)
		}
		_ = v
		closer.Close()
	}
	out = append(out, BenchResult{"pebble.DB", "Get", time.Since(start).Nanoseconds() / int64(n), memMB()})

	start = time.Now()
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		log.Fatalf("pebble: new iter: %v", err)
	}
	scanned := 0
	for iter.First(); iter.Valid(); iter.Next() {
		scanned++
	}
	iter.Close()
	out = append(out, BenchResult{"pebble.DB", "Scan", time.Since(start).Nanoseconds() / int64(scanned), memMB()})

	start = time.Now()
	for k := 0; k < n; k += 2 {
		if err := db.Delete(encodeKey(k), pebble.NoSync); err != nil {
			log.Fatalf("pebble: delete %d: %v", k, err)
		}
	}
	out = append(out, BenchResult{"pebble.DB", "Delete", time.Since(start).Nanoseconds() / int64(n/2), memMB()})

	return out
}

// plotLatencies renders a grouped bar chart of per-operation latency for
// both engines to a PNG.
func plotLatencies(path string, results []BenchResult) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("new plot: %w", err)
	}
	p.Title.Text = "bplus.Tree vs pebble.DB latency (ns/op)"
	p.Y.Label.Text = "ns/op"

	ops := []string{"Insert", "Get", "Scan", "Delete"}
	engines := []string{"bplus.Tree", "pebble.DB"}

	byEngineOp := make(map[string]map[string]int64)
	for _, r := range results {
		if byEngineOp[r.Engine] == nil {
			byEngineOp[r.Engine] = make(map[string]int64)
		}
		byEngineOp[r.Engine][r.Operation] = r.LatencyNs
	}

	w := vg.Points(15)
	for i, engine := range engines {
		vals := make(plotter.Values, len(ops))
		for j, op := range ops {
			vals[j] = float64(byEngineOp[engine][op])
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return fmt.Errorf("new bar chart for %s: %w", engine, err)
		}
		bars.Offset = vg.Length(i) * (w + vg.Points(5))
		p.Add(bars)
		p.Legend.Add(engine, bars)
	}
	p.NominalX(ops...)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
