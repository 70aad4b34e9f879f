// Command dataset_gen emits deterministic shard_id datasets for standalone
// cache-eviction benchmarking outside `go test` (e.g. for feeding a load
// generator driving a running veild instance). It writes one hex-encoded
// 32-byte hash per line.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -dist=zipf -seed=42 -out shard_ids.txt
//
// Flags:
//
//	-n      number of shard IDs to generate (default 1e6)
//	-dist   distribution: "uniform" or "zipf" (default uniform)
//	-zipfs  Zipf s parameter (>1)  (default 1.2)
//	-zipfv  Zipf v parameter (>=1) (default 1.0)
//	-seed   RNG seed (default current time)
//	-out    output file (default stdout)
//
// A zipf distribution models the skewed popularity real shard traffic
// exhibits (a small number of objects account for most replica sightings),
// which is the case the composite-score evictor's rarity term is meant to
// handle well; uniform traffic is the easy case by comparison.
//
// © 2025 veil authors. MIT License.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/veil-project/veil/internal/primitives"
)

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of shard IDs to generate")
		dist    = flag.String("dist", "uniform", "distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = rnd.Uint64
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, ^uint64(0))
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	for i := 0; i < *n; i++ {
		// Fold the distribution's 64-bit draw into a 32-byte hash via the
		// same BLAKE3 primitive used to derive shard IDs elsewhere, so the
		// emitted dataset is shaped like real traffic rather than raw
		// integers.
		var seed [8]byte
		v := gen()
		for i := range seed {
			seed[i] = byte(v >> (8 * i))
		}
		h := primitives.H(seed[:])
		fmt.Fprintln(w, hex.EncodeToString(h[:]))
	}
}
