package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftSetQuantity(t *testing.T) {
	var d Draft

	d.SetQuantity(1, "Soap", 10)
	d.SetQuantity(2, "Shampoo", 5)
	d.SetQuantity(1, "Soap", 3) // overwrite, not duplicate

	require.Len(t, d.Items, 2)
	assert.Equal(t, int64(1), d.Items[0].ProductID, "first-added product keeps its position")
	assert.Equal(t, 3, d.Items[0].Quantity, "last-set quantity wins")
	assert.Equal(t, 5, d.Items[1].Quantity)

	d.SetQuantity(1, "Soap", 0) // zero removes
	require.Len(t, d.Items, 1)
	assert.Equal(t, int64(2), d.Items[0].ProductID)
	assert.Equal(t, 0, d.Quantity(1))

	d.SetQuantity(9, "Towel", -1) // never inserted
	assert.Len(t, d.Items, 1)
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(0)

	assert.Nil(t, s.Get(42))

	s.Put(42, &Session{UserID: 7, State: StateAwaitingArea})
	sess := s.Get(42)
	require.NotNil(t, sess)
	assert.Equal(t, StateAwaitingArea, sess.State)

	s.Delete(42)
	assert.Nil(t, s.Get(42))
}

func TestStoreIdleExpiry(t *testing.T) {
	s := NewStore(30 * time.Second)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Put(1, &Session{State: StateSelectingProducts})

	now = now.Add(20 * time.Second)
	require.NotNil(t, s.Get(1), "within the idle window the session survives")

	// Get refreshed LastActivity, so the window restarts from 0:20.
	now = now.Add(31 * time.Second)
	assert.Nil(t, s.Get(1), "expired session is treated as absent")
	assert.Nil(t, s.Get(1))
}

func TestStoreIndependentUsers(t *testing.T) {
	s := NewStore(0)
	s.Put(1, &Session{State: StateSelectingProducts})
	s.Put(2, &Session{State: StateSelectingProducts})

	// Interleave draft mutations from two users; each must end with its
	// own independent draft.
	var wg sync.WaitGroup
	for _, tgID := range []int64{1, 2} {
		tgID := tgID
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				unlock := s.Lock(tgID)
				sess := s.Get(tgID)
				sess.Draft.SetQuantity(tgID, "P", i+1)
				unlock()
			}
		}()
	}
	wg.Wait()

	s1 := s.Get(1)
	s2 := s.Get(2)
	require.Len(t, s1.Draft.Items, 1)
	require.Len(t, s2.Draft.Items, 1)
	assert.Equal(t, int64(1), s1.Draft.Items[0].ProductID)
	assert.Equal(t, int64(2), s2.Draft.Items[0].ProductID)
	assert.Equal(t, 100, s1.Draft.Items[0].Quantity)
	assert.Equal(t, 100, s2.Draft.Items[0].Quantity)
}
