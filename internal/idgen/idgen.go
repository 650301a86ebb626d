package idgen

import "github.com/google/uuid"

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// Short returns the leading segment of a fresh identifier. Epic ids embed it
// so that derived session ids and branch names stay readable in logs.
func Short() string {
	id := New()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
