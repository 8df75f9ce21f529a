// Package enginepool keeps a fixed number of expensive recognition engines
// and hands each to one call at a time. An engine whose call outlives its
// context is retired and replaced instead of going back into the pool.
package enginepool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Engine is anything the pool can release.
type Engine interface {
	Close() error
}

// Pool is a fixed-size set of engines built by one factory.
type Pool[E Engine] struct {
	slots chan E
	build func() (E, error)
	log   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New builds size engines concurrently. If any of them fails, the ones
// already built are closed and the error is returned.
func New[E Engine](size int, build func() (E, error), log *slog.Logger) (*Pool[E], error) {
	if size < 1 {
		size = 1
	}
	p := &Pool[E]{slots: make(chan E, size), build: build, log: log}

	var g errgroup.Group
	for i := 0; i < size; i++ {
		g.Go(func() error {
			e, err := build()
			if err != nil {
				return err
			}
			p.slots <- e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Do runs fn with an engine from the pool. When ctx ends before fn returns,
// Do returns ctx.Err() at once. The engine is then closed as soon as fn
// finishes and a new one takes its slot.
func (p *Pool[E]) Do(ctx context.Context, fn func(E) error) error {
	var e E
	select {
	case e = <-p.slots:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("engine panic: %v", r)
			}
		}()
		done <- fn(e)
	}()

	select {
	case err := <-done:
		p.release(e)
		return err
	case <-ctx.Done():
		p.retire(e, done)
		return ctx.Err()
	}
}

func (p *Pool[E]) release(e E) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = e.Close()
		return
	}
	p.slots <- e
}

// retire closes e once its abandoned call returns and builds a replacement
// so the pool keeps its size.
func (p *Pool[E]) retire(e E, done <-chan error) {
	go func() {
		<-done
		_ = e.Close()
	}()
	go func() {
		fresh, err := p.build()
		if err != nil {
			p.log.Error("enginepool: replacement failed, pool shrinks", "error", err)
			return
		}
		p.release(fresh)
	}()
}

// Close releases idle engines. Engines still lent to callers, retired or
// being replaced are closed when they come back.
func (p *Pool[E]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for {
		select {
		case e := <-p.slots:
			_ = e.Close()
		default:
			return
		}
	}
}

// Idle reports how many engines are waiting in the pool.
func (p *Pool[E]) Idle() int { return len(p.slots) }
