// Package concurrency holds the optimistic-locking sentinel shared by every repository.
package concurrency

import "errors"

// ErrConcurrentUpdate is returned by repositories when a stored version no longer matches.
var ErrConcurrentUpdate = errors.New("store: concurrent update detected")
