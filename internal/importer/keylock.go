package importer

import "sync"

// keyLock serializes work per string key while leaving different keys fully
// parallel. The import pipeline locks on each row's resolved person
// identity so two rows targeting the same (possibly not-yet-created) person
// cannot interleave their find-or-create, which would duplicate the person.
//
// Entries are reference counted and removed when the last holder unlocks,
// so the map stays small even across large files.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// Lock acquires the lock for key and returns the matching unlock function.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
