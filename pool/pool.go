package pool

import (
	"os"
	"sync"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/Konopatkin-OV/afina/log"
)

// Task is an opaque, no-argument unit of work. The pool never inspects it.
type Task func()

type state int32

const (
	stopped state = iota
	running
	stopping
)

// Pool is a dynamically-sized worker pool. It is safe for concurrent use.
// The zero value is not usable; construct with New.
type Pool struct {
	mu sync.Mutex
	// notEmpty is signalled on Execute (wake one) and broadcast on the
	// Running->Stopping transition (wake all).
	notEmpty *sync.Cond
	// allDone is broadcast whenever liveWorkers reaches zero, for Stop(true).
	allDone *sync.Cond

	log log.Logger

	low, high, maxQueue int
	idleTimeout         time.Duration

	st          state
	queue       []Task
	liveWorkers int
	freeWorkers int
}

// New creates a pool with the given low/high watermarks, maximum queue
// depth, and idle timeout before a worker above the low watermark exits.
// The pool is created Stopped; call Start to spawn the low-watermark workers.
func New(low, high, maxQueue int, idleTimeout time.Duration, l log.Logger) *Pool {
	if l == nil {
		l = log.NewLogger(log.ErrorLevel, os.Stderr)
	}
	p := &Pool{
		low:         low,
		high:        high,
		maxQueue:    maxQueue,
		idleTimeout: idleTimeout,
		log:         l,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.allDone = sync.NewCond(&p.mu)
	return p
}

// Start transitions the pool to Running and spawns the low-watermark workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st = running
	p.liveWorkers = p.low
	p.freeWorkers = p.low
	for i := 0; i < p.low; i++ {
		go p.worker()
	}
}

// Execute enqueues task for execution. It returns false, dropping the task,
// if the pool is not Running or the queue is already at maxQueue. If no
// worker is free and the pool has not reached its high watermark, Execute
// spawns one additional worker before enqueueing.
func (p *Pool) Execute(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st != running {
		return false
	}
	if len(p.queue) >= p.maxQueue {
		return false
	}
	if p.freeWorkers == 0 && p.liveWorkers < p.high {
		p.liveWorkers++
		p.freeWorkers++
		go p.worker()
	}
	p.queue = append(p.queue, task)
	p.notEmpty.Signal()
	return true
}

// Stop transitions a Running pool to Stopping and wakes every worker so none
// blocks on the condition variable indefinitely. Tasks already queued are
// still executed. If await is true, Stop blocks until every worker has
// exited. There is no hard-abort mode: Stop(false) returns immediately but
// the pool keeps draining its queue in the background.
func (p *Pool) Stop(await bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st == running {
		p.st = stopping
		p.notEmpty.Broadcast()
	}
	for await && p.liveWorkers > 0 {
		p.allDone.Wait()
	}
}

// State reports the current live and free worker counts, for tests and
// diagnostics.
func (p *Pool) State() (live, free int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveWorkers, p.freeWorkers
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		task, ok := p.next()
		p.mu.Unlock()
		if !ok {
			return
		}
		p.run(task)
	}
}

// next implements the worker state machine. Called with
// p.mu held; it either returns the next task to run (with freeWorkers
// already decremented) or ok=false, meaning this worker has already
// unregistered itself and must exit.
func (p *Pool) next() (task Task, ok bool) {
	for {
		if len(p.queue) > 0 {
			task = p.queue[0]
			p.queue = p.queue[1:]
			p.freeWorkers--
			return task, true
		}
		if p.st == stopping {
			p.exit(true)
			return nil, false
		}

		deadline := time.Now().Add(p.idleTimeout)
		if !p.waitUntil(deadline) {
			// Woken by a real signal/broadcast; reevaluate from the top.
			continue
		}
		if p.st != running || len(p.queue) > 0 {
			continue
		}
		if p.liveWorkers > p.low {
			p.exit(false)
			return nil, false
		}
		// A low-watermark worker is immortal while Running: wait without a
		// deadline until genuinely woken, then reevaluate.
		p.notEmpty.Wait()
	}
}

// waitUntil blocks on notEmpty until woken or deadline passes, reporting
// whether the deadline was the reason it returned. sync.Cond has no native
// deadline wait, so a timer broadcasts the condition variable if the
// deadline arrives first — the standard Go idiom for a bounded Cond wait.
func (p *Pool) waitUntil(deadline time.Time) (timedOut bool) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		p.mu.Lock()
		p.notEmpty.Broadcast()
		p.mu.Unlock()
	})
	p.notEmpty.Wait()
	return !timer.Stop()
}

// exit unregisters the calling worker. stoppingExit distinguishes the
// Stopping-drain path, which additionally wakes one peer so the shutdown
// signal keeps propagating, from the idle-timeout path.
func (p *Pool) exit(stoppingExit bool) {
	p.freeWorkers--
	p.liveWorkers--
	if stoppingExit {
		p.notEmpty.Signal()
	}
	if p.liveWorkers == 0 {
		p.allDone.Broadcast()
	}
}

// run executes task outside the pool mutex, restoring freeWorkers
// afterward. A task that panics is caught and logged; it never poisons the
// pool or is observable through Execute's return value.
func (p *Pool) run(task Task) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Errorf("pool: task panicked: %v", stackerr.Newf("panic: %v", r))
			}
		}()
		task()
	}()
	p.mu.Lock()
	p.freeWorkers++
	p.mu.Unlock()
}
