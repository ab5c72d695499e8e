package helpers

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Calls "fn" once for each item using at most GOMAXPROCS goroutines and waits
// for every call to finish. Each call must only write to state owned by its
// own item. The first error returned by any call is returned.
func ForEachInParallel[T any](items []T, fn func(item T) error) error {
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for _, item := range items {
		group.Go(func() error {
			return fn(item)
		})
	}
	return group.Wait()
}
