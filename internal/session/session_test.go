package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/buyerd/internal/artifact"
	"github.com/fyrsmithlabs/buyerd/internal/catalog"
)

func TestParsePreference(t *testing.T) {
	for _, valid := range []string{"rating_conscious", "price_conscious", "review_conscious"} {
		p, err := ParsePreference(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(p))
	}
	_, err := ParsePreference("thrifty")
	assert.ErrorIs(t, err, ErrInvalidPreference)
}

func TestSetPreferences(t *testing.T) {
	st := NewStore()

	err := st.SetPreferences("u1", []string{"price_conscious", "rating_conscious", "price_conscious"})
	require.NoError(t, err)
	s := st.Get("u1")
	assert.Equal(t, []Preference{PrefPriceConscious, PrefRatingConscious}, s.Preferences)
	assert.True(t, s.HasPreferences())

	err = st.SetPreferences("u1", []string{"bogus"})
	assert.ErrorIs(t, err, ErrInvalidPreference)

	err = st.SetPreferences("u1", nil)
	assert.ErrorIs(t, err, ErrInvalidPreference)
}

func TestPendingQueryBuffer(t *testing.T) {
	st := NewStore()

	_, ok := st.TakePendingQuery("u1")
	assert.False(t, ok)

	st.BufferPendingQuery("u1", "laptops under 50000")
	st.BufferPendingQuery("u1", "wireless mouse under 2000")

	q, ok := st.TakePendingQuery("u1")
	require.True(t, ok)
	assert.Equal(t, "wireless mouse under 2000", q)

	_, ok = st.TakePendingQuery("u1")
	assert.False(t, ok)
}

func TestClearKeepsPreferences(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.SetPreferences("u1", []string{"price_conscious"}))

	err := st.Do("u1", func(s *Session) error {
		chain, _ := artifact.StartChain("mouse", "mouse", []catalog.ProductRow{{ID: "prod_1", Title: "m"}})
		s.Chain = chain
		s.PendingQuery = "stale"
		return nil
	})
	require.NoError(t, err)

	st.Clear("u1")
	s := st.Get("u1")
	assert.Nil(t, s.Chain)
	assert.Empty(t, s.PendingQuery)
	assert.Equal(t, []Preference{PrefPriceConscious}, s.Preferences)
}

func TestDoSerializesPerUser(t *testing.T) {
	st := NewStore()

	const turns = 100
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Do("u1", func(s *Session) error {
				s.PendingQuery += "x"
				return nil
			})
		}()
	}
	wg.Wait()

	s := st.Get("u1")
	assert.Len(t, s.PendingQuery, turns)
}

func TestUsersAreIndependent(t *testing.T) {
	st := NewStore()
	blocked := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = st.Do("u1", func(*Session) error {
			close(entered)
			<-blocked
			return nil
		})
	}()
	<-entered

	// u2 must not wait for u1's turn to finish.
	done := make(chan struct{})
	go func() {
		_ = st.Do("u2", func(s *Session) error {
			s.Role = "manager"
			return nil
		})
		close(done)
	}()
	<-done
	close(blocked)

	assert.Equal(t, "manager", st.Get("u2").Role)
}
