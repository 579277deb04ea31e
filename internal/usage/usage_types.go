package usage

import "fmt"

// Record is the persisted daily counter.
type Record struct {
	Day   string `json:"day"` // YYYY-MM-DD in the tracker's location
	Count int    `json:"count"`
}

// PersistenceError wraps a storage failure. It is never fatal: the tracker
// keeps counting in memory and the caller only logs it.
type PersistenceError struct {
	Op  string // "open", "load" or "save"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("usage %s of %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
