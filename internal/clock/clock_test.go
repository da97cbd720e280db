package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_AfterAdvancesAndRecords(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fired := <-fake.After(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), fired)
	assert.Equal(t, start.Add(5*time.Second), fake.Now())

	<-fake.After(0)
	assert.Equal(t, []time.Duration{5 * time.Second, 0}, fake.Waits())
	assert.Equal(t, 5*time.Second, fake.Total())
}

func TestFakeClock_AdvanceDoesNotRecord(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fake.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), fake.Now())
	assert.Empty(t, fake.Waits())
}

func TestRealClock_AfterZeroFires(t *testing.T) {
	select {
	case <-Real().After(0):
	case <-time.After(time.Second):
		t.Fatal("After(0) did not fire")
	}
}
