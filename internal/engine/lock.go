package engine

import "sync"

// projectLocks holds one mutex per absolute project root. Passes on the same
// root are serialized; passes on different roots run concurrently.
var projectLocks sync.Map

func lockProject(root string) (unlock func()) {
	v, _ := projectLocks.LoadOrStore(root, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
