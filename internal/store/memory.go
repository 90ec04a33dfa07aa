package store

import (
	"context"
	"sync"

	"codearena/internal/model"
)

// MemoryStore is the in-process Store used by tests and the unauthenticated
// practice mode. It implements the same optimistic-concurrency semantics as
// the Redis store: versioned snapshots, retry-on-stale commit, and fan-out
// notification of every committed write.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]*versioned
	subs     map[string]map[int]*mailbox
	nextSub  int
	disabled bool
}

type versioned struct {
	doc     *model.Session
	version uint64
}

// mailbox serializes deliveries to one subscriber. It holds only the latest
// snapshot: intermediate states may be coalesced, but the newest committed
// state is always the last one delivered — out-of-order goroutine fan-out
// would let a subscriber end on a stale snapshot.
type mailbox struct {
	ch   chan *model.Session
	done chan struct{}
}

func newMailbox(onChange func(*model.Session)) *mailbox {
	m := &mailbox{
		ch:   make(chan *model.Session, 1),
		done: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case snapshot := <-m.ch:
				onChange(snapshot)
			case <-m.done:
				return
			}
		}
	}()
	return m
}

// push replaces any undelivered snapshot with the newer one. Never blocks.
func (m *mailbox) push(snapshot *model.Session) {
	for {
		select {
		case m.ch <- snapshot:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

func (m *mailbox) close() {
	close(m.done)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*versioned),
		subs: make(map[string]map[int]*mailbox),
	}
}

// SetUnavailable toggles simulated outage. Every operation fails with
// ErrUnavailable while set. Test hook only.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.mu.Lock()
	m.disabled = down
	m.mu.Unlock()
}

func (m *MemoryStore) Create(ctx context.Context, code string, doc *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}
	if _, ok := m.docs[code]; ok {
		return ErrCodeTaken
	}
	m.docs[code] = &versioned{doc: doc.Clone(), version: 1}
	m.notifyLocked(code)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, code string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return nil, ErrUnavailable
	}
	entry, ok := m.docs[code]
	if !ok {
		return nil, nil
	}
	return entry.doc.Clone(), nil
}

func (m *MemoryStore) MergeUpdate(ctx context.Context, code string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}
	entry, ok := m.docs[code]
	if !ok {
		return nil
	}
	doc := entry.doc.Clone()
	ApplyPatch(doc, patch)
	entry.doc = doc
	entry.version++
	m.notifyLocked(code)
	return nil
}

func (m *MemoryStore) Transact(ctx context.Context, code string, fn TxFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.Lock()
		if m.disabled {
			m.mu.Unlock()
			return ErrUnavailable
		}
		var snapshot *model.Session
		var readVersion uint64
		if entry, ok := m.docs[code]; ok {
			snapshot = entry.doc.Clone()
			readVersion = entry.version
		}
		m.mu.Unlock()

		// fn runs outside the lock so concurrent writers can interleave;
		// staleness is caught at commit time below.
		next, err := fn(snapshot)
		if err != nil {
			return err
		}

		m.mu.Lock()
		entry, ok := m.docs[code]
		var currentVersion uint64
		if ok {
			currentVersion = entry.version
		}
		if currentVersion != readVersion {
			m.mu.Unlock()
			continue // snapshot went stale, re-run fn
		}
		if next == nil {
			// fn declined to write; nothing to commit.
			m.mu.Unlock()
			return nil
		}
		if !ok {
			m.docs[code] = &versioned{doc: next.Clone(), version: 1}
		} else {
			entry.doc = next.Clone()
			entry.version++
		}
		m.notifyLocked(code)
		m.mu.Unlock()
		return nil
	}
}

func (m *MemoryStore) Subscribe(ctx context.Context, code string, onChange func(*model.Session)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return nil, ErrUnavailable
	}
	if m.subs[code] == nil {
		m.subs[code] = make(map[int]*mailbox)
	}
	id := m.nextSub
	m.nextSub++
	box := newMailbox(onChange)
	m.subs[code][id] = box

	// Deliver the current state immediately so late subscribers converge.
	if entry, ok := m.docs[code]; ok {
		box.push(entry.doc.Clone())
	}

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if b, ok := m.subs[code][id]; ok {
			b.close()
			delete(m.subs[code], id)
		}
	}
	return unsubscribe, nil
}

// Delete removes a document and notifies subscribers with nil. Used by
// garbage collection of finished sessions, never by leave.
func (m *MemoryStore) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrUnavailable
	}
	delete(m.docs, code)
	m.notifyLocked(code)
	return nil
}

func (m *MemoryStore) notifyLocked(code string) {
	var snapshot *model.Session
	if entry, ok := m.docs[code]; ok {
		snapshot = entry.doc.Clone()
	}
	for _, box := range m.subs[code] {
		box.push(snapshot)
	}
}
