// Bench measures phtable build time, lookup latency, table size and peak
// memory for a random key set.
//
// Usage:
//
//	go run ./cmd/bench -keys 1000000 -value 4 -algo xxh3
//
// Flags:
//
//	-keys      Number of keys (default: 1,000,000)
//	-value     Value size in bytes, 0 for a key set (default: 4)
//	-lambda    Keys per bucket (default: 1.5)
//	-alpha     Keys per slot (default: 0.8)
//	-retries   Construction attempts (default: 16)
//	-algo      Hash algorithm: xxh3, siphash or murmur3 (default: xxh3)
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tamirms/phtable"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// peakSampler tracks peak heap and RSS at 10ms intervals. It reads
// runtime/metrics instead of ReadMemStats to avoid stop-the-world pauses.
type peakSampler struct {
	heap atomic.Uint64
	rss  atomic.Uint64
	done chan struct{}
}

func startPeakSampler(baselineHeap, baselineRSS uint64) *peakSampler {
	p := &peakSampler{done: make(chan struct{})}
	p.heap.Store(baselineHeap)
	p.rss.Store(baselineRSS)
	go func() {
		samples := []metrics.Sample{
			{Name: "/memory/classes/heap/objects:bytes"},
		}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				storeMax(&p.heap, samples[0].Value.Uint64())
				storeMax(&p.rss, getMaxRSS())
			}
		}
	}()
	return p
}

func (p *peakSampler) stop() {
	close(p.done)
	var final runtime.MemStats
	runtime.ReadMemStats(&final)
	storeMax(&p.heap, final.Alloc)
	storeMax(&p.rss, getMaxRSS())
}

func storeMax(v *atomic.Uint64, x uint64) {
	for {
		old := v.Load()
		if x <= old || v.CompareAndSwap(old, x) {
			return
		}
	}
}

// checkSizes validates the -keys and -value flags.
func checkSizes(numKeys, valueSize int) error {
	if numKeys < 1 {
		return fmt.Errorf("-keys must be at least 1, got %d", numKeys)
	}
	if valueSize < 0 {
		return fmt.Errorf("-value must not be negative, got %d", valueSize)
	}
	return nil
}

func main() {
	keysFlag := flag.Int("keys", 1_000_000, "number of keys")
	valueFlag := flag.Int("value", 4, "value size in bytes (0 for a key set)")
	lambdaFlag := flag.Float64("lambda", phtable.DefaultLoadFactor, "keys per bucket")
	alphaFlag := flag.Float64("alpha", phtable.DefaultSlotLoad, "keys per slot")
	retriesFlag := flag.Int("retries", phtable.DefaultMaxRetries, "construction attempts")
	algoFlag := flag.String("algo", "xxh3", "hash algorithm: xxh3, siphash or murmur3")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file (build phase only)")
	memprofile := flag.String("memprofile", "", "write memory profile to file (build phase only)")
	flag.Parse()

	numKeys := *keysFlag
	valueSize := *valueFlag
	if err := checkSizes(numKeys, valueSize); err != nil {
		fmt.Println(err)
		return
	}

	algo, err := phtable.ParseHashAlgorithm(*algoFlag)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Generating entries...")
	entries := make([]phtable.Entry, numKeys)
	for i := range entries {
		key := make([]byte, 32)
		_, _ = rand.Read(key) // crypto/rand.Read error is fatal system issue; ignore for benchmark
		value := make([]byte, valueSize)
		for j := range value {
			value[j] = byte(mrand.Uint32())
		}
		entries[i] = phtable.Entry{Key: key, Value: value}
	}

	tmpDir, err := os.MkdirTemp("", "bench-")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	tablePath := filepath.Join(tmpDir, "bench.pht")

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)
	baselineRSS := getMaxRSS()
	sampler := startPeakSampler(baseline.Alloc, baselineRSS)

	// Start CPU profile for build phase
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Printf("could not create CPU profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("could not start CPU profile: %v\n", err)
			return
		}
	}

	fmt.Println("Building table...")
	opts := []phtable.BuildOption{
		phtable.WithLoadFactor(*lambdaFlag),
		phtable.WithSlotLoad(*alphaFlag),
		phtable.WithMaxRetries(*retriesFlag),
		phtable.WithHashAlgorithm(algo),
		phtable.WithMaxKeys(max(numKeys, phtable.DefaultMaxKeys)),
	}
	buildStart := time.Now()
	tbl, err := phtable.Build(entries, opts...)
	buildDuration := time.Since(buildStart)

	if *cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Printf("could not create memory profile: %v\n", err)
		} else {
			runtime.GC() // Get up-to-date statistics
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Printf("could not write memory profile: %v\n", err)
			}
			_ = f.Close()
		}
	}

	sampler.stop()
	peakHeapMem := sampler.heap.Load() - baseline.Alloc
	peakRSSMem := sampler.rss.Load() - baselineRSS

	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		return
	}
	stats := tbl.Stats()

	if err := tbl.WriteFile(tablePath); err != nil {
		fmt.Printf("WriteFile failed: %v\n", err)
		return
	}
	mapped, err := phtable.Open(tablePath)
	if err != nil {
		fmt.Printf("Open failed: %v\n", err)
		return
	}
	defer func() { _ = mapped.Close() }()

	queryOrder := mrand.Perm(numKeys)

	fmt.Println("Warming up queries...")
	for i := 0; i < 10000; i++ {
		_, _ = mapped.Get(entries[queryOrder[i%numKeys]].Key) // Benchmark: measuring throughput, not correctness
	}

	fmt.Println("Benchmarking queries...")
	numQueries := 100000
	queryStart := time.Now()
	for i := 0; i < numQueries; i++ {
		_, _ = mapped.Get(entries[queryOrder[i%numKeys]].Key)
	}
	queryDuration := time.Since(queryStart)
	avgLatency := float64(queryDuration.Nanoseconds()) / float64(numQueries) / 1000

	tableBitsPerKey := float64(stats.TableSize*8) / float64(numKeys)

	fmt.Printf("\n")
	fmt.Printf("╔═════════════════════╦════════════════╦══════════════════╗\n")
	fmt.Printf("║ Algo: %-14s║ λ=%-5.2f α=%-4.2f║                  ║\n", algo, *lambdaFlag, *alphaFlag)
	fmt.Printf("╠═════════════════════╬════════════════╬══════════════════╣\n")
	fmt.Printf("║ Metric              ║ Value          ║ Note             ║\n")
	fmt.Printf("╠═════════════════════╬════════════════╬══════════════════╣\n")
	fmt.Printf("║ Table size          ║ %6.3f bits/key║ (%d byte value)   ║\n", tableBitsPerKey, valueSize)
	fmt.Printf("║   - Displacements   ║ %6.3f bits/key║ (%d byte width)   ║\n", stats.BitsPerKey, stats.DisplacementWidth)
	fmt.Printf("║ Buckets / slots     ║ %6d / %-7d║ -                ║\n", stats.NumBuckets, stats.NumSlots)
	fmt.Printf("║ Max displacement    ║ %-14d ║ -                ║\n", stats.MaxDisplacement)
	fmt.Printf("║ Attempts            ║ %-14d ║ of %-13d ║\n", stats.Attempts, *retriesFlag)
	fmt.Printf("║ Query latency       ║ %6.2f μs      ║ -                ║\n", avgLatency)
	fmt.Printf("║ Build time          ║ %6.2f sec     ║ -                ║\n", buildDuration.Seconds())
	fmt.Printf("║ Build throughput    ║ %6.2f M/sec   ║ -                ║\n", float64(numKeys)/buildDuration.Seconds()/1_000_000)
	fmt.Printf("║ Peak heap memory    ║ %6.1f MB      ║ -                ║\n", float64(peakHeapMem)/1_000_000)
	fmt.Printf("║ Peak RSS memory     ║ %6.1f MB      ║ -                ║\n", float64(peakRSSMem)/1_000_000)
	fmt.Printf("╚═════════════════════╩════════════════╩══════════════════╝\n")
}
