package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codearena/internal/model"
)

func newSession(code string) *model.Session {
	return &model.Session{
		Code:   code,
		HostID: "host1",
		Domain: "backend",
		Status: model.SessionWaiting,
		Participants: []model.Participant{
			{ID: "host1", Name: "Host", Status: model.ParticipantCoding},
		},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.Create(ctx, "ABC123", newSession("ABC123")))

	t.Run("get returns a copy", func(t *testing.T) {
		doc, err := st.Get(ctx, "ABC123")
		require.NoError(t, err)
		require.NotNil(t, doc)

		doc.Participants[0].Progress = 99

		again, err := st.Get(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, 0, again.Participants[0].Progress)
	})

	t.Run("missing code is nil without error", func(t *testing.T) {
		doc, err := st.Get(ctx, "NOPE42")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("duplicate code is rejected", func(t *testing.T) {
		err := st.Create(ctx, "ABC123", newSession("ABC123"))
		assert.ErrorIs(t, err, ErrCodeTaken)
	})
}

func TestMemoryStore_TransactConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "RACE01", newSession("RACE01")))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := st.Transact(ctx, "RACE01", func(current *model.Session) (*model.Session, error) {
				next := current.Clone()
				next.Participants = append(next.Participants, model.Participant{
					ID:     fmt.Sprintf("u%d", n),
					Status: model.ParticipantCoding,
				})
				return next, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	doc, err := st.Get(ctx, "RACE01")
	require.NoError(t, err)
	// Host plus every concurrent joiner; no append may be lost.
	assert.Len(t, doc.Participants, writers+1)
}

func TestMemoryStore_TransactNoWrite(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "KEEP01", newSession("KEEP01")))

	before, err := st.Get(ctx, "KEEP01")
	require.NoError(t, err)

	calls := 0
	err = st.Transact(ctx, "KEEP01", func(current *model.Session) (*model.Session, error) {
		calls++
		return nil, nil // decline to write
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	after, err := st.Get(ctx, "KEEP01")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMemoryStore_MergeUpdate(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "MRG001", newSession("MRG001")))

	task := "build a queue"
	status := model.SessionActive
	now := time.Now()
	require.NoError(t, st.MergeUpdate(ctx, "MRG001", Patch{
		TaskDescription: &task,
		Checkpoints:     []string{"a", "b"},
	}))
	require.NoError(t, st.MergeUpdate(ctx, "MRG001", Patch{
		Status:    &status,
		StartTime: &now,
	}))

	doc, err := st.Get(ctx, "MRG001")
	require.NoError(t, err)
	assert.Equal(t, "build a queue", doc.TaskDescription)
	assert.Equal(t, []string{"a", "b"}, doc.Checkpoints)
	assert.Equal(t, model.SessionActive, doc.Status)
	require.NotNil(t, doc.StartTime)
	// The scenario patch must not be clobbered by the status patch.
	assert.Len(t, doc.Participants, 1)
}

func TestMemoryStore_MergeDoesNotEraseConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "MRG002", newSession("MRG002")))

	// Field patches race participant commits; a merge writing back a stale
	// participants array would erase joins that already reported success.
	const joiners = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		status := model.SessionActive
		for i := 0; i < 50; i++ {
			now := time.Now()
			assert.NoError(t, st.MergeUpdate(ctx, "MRG002", Patch{Status: &status, StartTime: &now}))
		}
	}()

	for i := 0; i < joiners; i++ {
		err := st.Transact(ctx, "MRG002", func(current *model.Session) (*model.Session, error) {
			next := current.Clone()
			next.Participants = append(next.Participants, model.Participant{
				ID:     fmt.Sprintf("j%d", i),
				Status: model.ParticipantCoding,
			})
			return next, nil
		})
		require.NoError(t, err)
	}
	<-done

	doc, err := st.Get(ctx, "MRG002")
	require.NoError(t, err)
	assert.Len(t, doc.Participants, joiners+1)
	assert.Equal(t, model.SessionActive, doc.Status)
}

func TestMemoryStore_SubscriberConvergesOnLatest(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "CNV001", newSession("CNV001")))

	var mu sync.Mutex
	var last *model.Session
	unsub, err := st.Subscribe(ctx, "CNV001", func(doc *model.Session) {
		mu.Lock()
		last = doc
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	const writes = 30
	for i := 1; i <= writes; i++ {
		progress := i
		require.NoError(t, st.Transact(ctx, "CNV001", func(current *model.Session) (*model.Session, error) {
			next := current.Clone()
			next.Participants[0].Progress = progress
			return next, nil
		}))
	}

	// Intermediate states may be coalesced, but once writes stop the final
	// delivered snapshot must be the newest one, never a stale reordering.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last.Participants[0].Progress == writes
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "SUB001", newSession("SUB001")))

	updates := make(chan *model.Session, 8)
	unsub, err := st.Subscribe(ctx, "SUB001", func(doc *model.Session) {
		updates <- doc
	})
	require.NoError(t, err)
	defer unsub()

	t.Run("current state delivered immediately", func(t *testing.T) {
		select {
		case doc := <-updates:
			require.NotNil(t, doc)
			assert.Equal(t, "SUB001", doc.Code)
		case <-time.After(time.Second):
			t.Fatal("no initial snapshot delivered")
		}
	})

	t.Run("writes notify", func(t *testing.T) {
		status := model.SessionActive
		require.NoError(t, st.MergeUpdate(ctx, "SUB001", Patch{Status: &status}))
		select {
		case doc := <-updates:
			require.NotNil(t, doc)
			assert.Equal(t, model.SessionActive, doc.Status)
		case <-time.After(time.Second):
			t.Fatal("no update delivered")
		}
	})

	t.Run("delete notifies nil", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, "SUB001"))
		select {
		case doc := <-updates:
			assert.Nil(t, doc)
		case <-time.After(time.Second):
			t.Fatal("no delete notification delivered")
		}
	})
}

func TestMemoryStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.SetUnavailable(true)

	assert.ErrorIs(t, st.Create(ctx, "DWN001", newSession("DWN001")), ErrUnavailable)

	_, err := st.Get(ctx, "DWN001")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = st.Transact(ctx, "DWN001", func(current *model.Session) (*model.Session, error) {
		t.Fatal("transaction body must not run while unavailable")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	st.SetUnavailable(false)
	assert.NoError(t, st.Create(ctx, "DWN001", newSession("DWN001")))
}
