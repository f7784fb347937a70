package processor

import (
	"sync"
)

// ConcLimiter caps the number of in-flight goroutines while letting
// the owner wait for all of them to drain.
type ConcLimiter struct {
	*sync.WaitGroup
	Pool chan struct{}
}

func (c *ConcLimiter) Increase() {
	c.Add(1)
	c.Pool <- struct{}{}
}

func (c *ConcLimiter) Decrease() {
	select {
	case <-c.Pool:
		c.Done()
	default:
	}
}

func NewConcLimiter(cLevel int) *ConcLimiter {
	var wg sync.WaitGroup
	return &ConcLimiter{&wg, make(chan struct{}, cLevel)}
}
