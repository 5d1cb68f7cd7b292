package quizgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyPool_DropsEmptySlotsKeepingOrder(t *testing.T) {
	p, err := NewKeyPool("", "k1", "  ", "k2", "", "k3")
	require.NoError(t, err)

	assert.Equal(t, 3, p.Size())
	assert.Equal(t, 0, p.Cursor())
	assert.Equal(t, []string{"k1", "k2", "k3"}, p.keys)
}

func TestNewKeyPool_Empty(t *testing.T) {
	_, err := NewKeyPool("", " ")
	assert.ErrorIs(t, err, ErrNoKeys)

	_, err = NewKeyPool()
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestKeyPool_RotateWraps(t *testing.T) {
	p, err := NewKeyPool("a", "b", "c")
	require.NoError(t, err)

	assert.Equal(t, "a", p.Current())
	assert.Equal(t, 1, p.Rotate())
	assert.Equal(t, "b", p.Current())
	assert.Equal(t, 2, p.Rotate())
	assert.Equal(t, 0, p.Rotate())
	assert.Equal(t, "a", p.Current())
}

func TestKeyPool_SingleKeyRotateIsNoop(t *testing.T) {
	p, err := NewKeyPool("only")
	require.NoError(t, err)

	assert.Equal(t, 0, p.Rotate())
	assert.Equal(t, "only", p.Current())
}

func TestKeyPool_SetCursor(t *testing.T) {
	p, err := NewKeyPool("a", "b", "c")
	require.NoError(t, err)

	p.SetCursor(4)
	assert.Equal(t, 1, p.Cursor())
	p.SetCursor(-1)
	assert.Equal(t, 2, p.Cursor())
	assert.Equal(t, "c", p.Current())
}

func TestKeyPool_ConcurrentRotate(t *testing.T) {
	p, err := NewKeyPool("a", "b", "c")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				p.Rotate()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, (50*20)%3, p.Cursor())
}

func TestKeyPool_ActivePairsStayConsistent(t *testing.T) {
	keys := []string{"a", "b", "c"}
	p, err := NewKeyPool(keys...)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for j := 0; j < 2000; j++ {
			p.Rotate()
		}
	}()
	for j := 0; j < 2000; j++ {
		i, key := p.Active()
		require.Equal(t, keys[i], key)
	}
	<-done
}
