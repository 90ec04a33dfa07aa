package arena

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codearena/internal/model"
)

func TestCountdown_ExpireFiresOnce(t *testing.T) {
	var fired int32
	c := NewCountdown(time.Hour, nil, func() {
		atomic.AddInt32(&fired, 1)
	})
	c.Start()

	// Everyone finishing early and a racing duplicate call both route here.
	c.Expire()
	c.Expire()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCountdown_StopPreventsExpiry(t *testing.T) {
	var fired int32
	c := NewCountdown(time.Second, nil, func() {
		atomic.AddInt32(&fired, 1)
	})
	c.Start()
	c.Stop()
	c.Stop() // safe to call twice

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestCountdown_NaturalExpiry(t *testing.T) {
	done := make(chan struct{})
	c := NewCountdown(time.Second, nil, func() {
		close(done)
	})
	c.Start()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("countdown never expired")
	}
}

func TestRank_TiesKeepJoinOrder(t *testing.T) {
	participants := []model.Participant{
		{ID: "a", Name: "A", Progress: 80},
		{ID: "b", Name: "B", Progress: 100},
		{ID: "c", Name: "C", Progress: 80},
		{ID: "d", Name: "D", Progress: 60},
	}

	rankings := Rank(participants)
	require.Len(t, rankings, 4)

	assert.Equal(t, []string{"b", "a", "c", "d"}, []string{
		rankings[0].UserID, rankings[1].UserID, rankings[2].UserID, rankings[3].UserID,
	})
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, 4, rankings[3].Rank)

	// Input order untouched.
	assert.Equal(t, "a", participants[0].ID)
}

func TestRank_ScoreIsNotATiebreak(t *testing.T) {
	participants := []model.Participant{
		{ID: "a", Progress: 50, Score: 10},
		{ID: "b", Progress: 50, Score: 90},
	}

	rankings := Rank(participants)
	assert.Equal(t, "a", rankings[0].UserID)
}

func TestBotPacing(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		inc := botIncrement(rng)
		assert.GreaterOrEqual(t, inc, 5)
		assert.LessOrEqual(t, inc, 15)

		delay := botDelay(rng)
		assert.GreaterOrEqual(t, delay, 2*time.Second)
		assert.LessOrEqual(t, delay, 6*time.Second)
	}
}
