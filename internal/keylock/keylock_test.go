package keylock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vytor/lingoflash/internal/keylock"
)

func TestLock_SerializesSameKey(t *testing.T) {
	m := keylock.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("item-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, m.Len(), "idle keys are released")
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	m := keylock.New()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, m.Len())
}
