package pipeline

import "sync"

// collector aggregates task results. Index i belongs to the i-th spec.
// The first recorded failure decides the run outcome; later failures are
// counted but never replace it.
type collector struct {
	mu       sync.Mutex
	aliases  []string
	keys     []string
	finished []bool
	first    error
	failures int
}

func newCollector(aliases []string) *collector {
	return &collector{
		aliases:  aliases,
		keys:     make([]string, len(aliases)),
		finished: make([]bool, len(aliases)),
	}
}

func (c *collector) succeed(i int, destKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[i] = destKey
	c.finished[i] = true
}

// fail records err for task i and reports whether it was the first failure.
func (c *collector) fail(i int, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[i] = true
	c.failures++
	if c.first == nil {
		c.first = err
		return true
	}
	return false
}

// snapshot returns the aliases still running, the keys already written in
// spec order, and the first failure.
func (c *collector) snapshot() (pending, written []string, first error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, alias := range c.aliases {
		switch {
		case !c.finished[i]:
			pending = append(pending, alias)
		case c.keys[i] != "":
			written = append(written, c.keys[i])
		}
	}
	return pending, written, c.first
}
