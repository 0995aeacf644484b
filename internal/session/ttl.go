package session

import (
	"container/heap"
	"sync"
	"time"
)

// ttlEntry is one scheduled eviction. generation lets resolve() push
// a session's deadline out without touching the heap: a popped entry
// whose generation no longer matches the registry's current
// generation for that username is stale and is dropped (spec §9's
// design note on a per-process min-heap dispatcher instead of a timer
// per session).
type ttlEntry struct {
	deadline   time.Time
	username   string
	generation uint64
	index      int
}

type ttlHeap []*ttlEntry

func (h ttlHeap) Len() int            { return len(h) }
func (h ttlHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h ttlHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *ttlHeap) Push(x any)         { e := x.(*ttlEntry); e.index = len(*h); *h = append(*h, e) }
func (h *ttlHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// ttlScheduler runs a single dispatcher goroutine that fires evict
// for whichever username's deadline elapses next, per spec §5's
// "TTL timer fires on an independent timer task" suspension point.
type ttlScheduler struct {
	mu    sync.Mutex
	h     ttlHeap
	gen   map[string]uint64
	seq   uint64 // last generation handed out, across all usernames
	wake  chan struct{}
	done  chan struct{}
	evict func(username string)
}

func newTTLScheduler(evict func(username string)) *ttlScheduler {
	s := &ttlScheduler{
		gen:   make(map[string]uint64),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		evict: evict,
	}
	go s.run()
	return s
}

// arm (re)schedules username's eviction for now+ttl, bumping its
// generation so any previously scheduled entry becomes stale.
func (s *ttlScheduler) arm(username string, ttl time.Duration) {
	s.mu.Lock()
	s.seq++
	gen := s.seq
	s.gen[username] = gen
	heap.Push(&s.h, &ttlEntry{deadline: time.Now().Add(ttl), username: username, generation: gen})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// cancel stops username from being evicted by any currently-armed
// entry, without needing to find and remove it from the heap.
func (s *ttlScheduler) cancel(username string) {
	s.mu.Lock()
	s.gen[username]++
	delete(s.gen, username)
	s.mu.Unlock()
}

func (s *ttlScheduler) stop() {
	close(s.done)
}

func (s *ttlScheduler) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if s.h.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.h[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.done:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

func (s *ttlScheduler) fireDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.h.Len() == 0 || s.h[0].deadline.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.h).(*ttlEntry)
		current, ok := s.gen[e.username]
		stale := !ok || current != e.generation
		s.mu.Unlock()

		if !stale {
			s.evict(e.username)
		}
	}
}
