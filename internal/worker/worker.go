// Package worker manages groups of background goroutines that share a
// single shutdown signal.
package worker

import "sync"

// Group runs goroutines that stop together. The zero value is ready to use.
type Group struct {
	wg   sync.WaitGroup
	once sync.Once

	haltCh chan struct{}
}

func (g *Group) init() {
	g.haltCh = make(chan struct{})
}

// Go runs fn in a new goroutine. fn must watch HaltCh and return once it
// is closed.
func (g *Group) Go(fn func()) {
	g.once.Do(g.init)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// HaltCh returns the channel closed by Halt.
func (g *Group) HaltCh() <-chan struct{} {
	g.once.Do(g.init)
	return g.haltCh
}

// Halt signals every goroutine started with Go to stop and waits for them
// to return. Halt must be called at most once.
func (g *Group) Halt() {
	g.once.Do(g.init)
	close(g.haltCh)
	g.wg.Wait()
}
