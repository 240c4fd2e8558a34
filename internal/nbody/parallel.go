package nbody

import "sync"

// serialCutoff is the loop length below which parallelFor stays on the
// calling goroutine.
const serialCutoff = 256

// parallelFor splits [0, n) into contiguous chunks, one per worker, and
// waits for all of them.
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if workers <= 1 || n < serialCutoff {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
