package id

import "github.com/google/uuid"

// New returns a fresh download identifier. UUIDs keep ids collision-free
// across processes, which matters once jobs are dispatched over the queue.
func New() string {
	return uuid.NewString()
}
