package granite

import "sync"

// task fans fn over data across workersCount goroutines and blocks until all
// are done. Callers guarantee that concurrent fn invocations touch disjoint
// state. A single worker degrades to a plain loop with no goroutine cost.
func task[T any](workersCount int, data []T, fn func(data T)) {
	dataSize := len(data)
	if workersCount <= 1 || dataSize < 2 {
		for i := 0; i < dataSize; i++ {
			fn(data[i])
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (dataSize + workersCount - 1) / workersCount

	for workerID := 0; workerID < workersCount; workerID++ {
		start := workerID * chunkSize
		end := min(start+chunkSize, dataSize)
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(data[i])
			}
		}(start, end)
	}
	wg.Wait()
}
