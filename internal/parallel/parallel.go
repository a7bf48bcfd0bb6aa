// Package parallel spreads dense kernel loops across CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// For runs fn(i) for every i in [0, n), splitting the index range into one
// contiguous span per available core. Each index is expected to carry real
// work (an output row, an image in a batch), so there is no minimum grain:
// n below the core count runs one goroutine per index, and n <= 1 runs
// inline on the caller.
func For(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	span := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += span {
		end := start + span
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
