package rules

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionClaimIsExclusive(t *testing.T) {
	s := NewSession()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("status_critical") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}

func TestRegistryReturnsSameSessionPerPatient(t *testing.T) {
	r := NewSessionRegistry(time.Minute)
	a, b := uuid.New(), uuid.New()

	assert.Same(t, r.For(a), r.For(a))
	assert.NotSame(t, r.For(a), r.For(b))
	assert.Equal(t, 2, r.Len())

	r.For(a).Claim("status_critical")
	r.Reset(a)
	assert.False(t, r.For(a).Fired("status_critical"))
}

func TestRegistrySessionsExpire(t *testing.T) {
	r := NewSessionRegistry(50 * time.Millisecond)
	id := uuid.New()

	r.For(id).Claim("dfg_decrease_40")
	time.Sleep(80 * time.Millisecond)

	assert.False(t, r.For(id).Fired("dfg_decrease_40"))
}
