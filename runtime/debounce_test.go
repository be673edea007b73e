package runtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefreshTrigger_BurstFiresOnce(t *testing.T) {
	req := require.New(t)
	var fired atomic.Int32
	trigger := NewRefreshTrigger(30*time.Millisecond, func() { fired.Add(1) })
	defer trigger.Cancel()

	// When ten triggers land inside one quiet window
	for i := 0; i < 10; i++ {
		trigger.Trigger()
	}

	req.Eventually(func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	req.EqualValues(1, fired.Load())
}

func TestRefreshTrigger_SpacedTriggersFireSeparately(t *testing.T) {
	req := require.New(t)
	var fired atomic.Int32
	trigger := NewRefreshTrigger(20*time.Millisecond, func() { fired.Add(1) })
	defer trigger.Cancel()

	trigger.Trigger()
	req.Eventually(func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	trigger.Trigger()
	req.Eventually(func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
}

func TestRefreshTrigger_CancelSuppressesPendingFire(t *testing.T) {
	req := require.New(t)
	var fired atomic.Int32
	trigger := NewRefreshTrigger(20*time.Millisecond, func() { fired.Add(1) })

	trigger.Trigger()
	trigger.Cancel()

	time.Sleep(50 * time.Millisecond)
	req.Zero(fired.Load())

	// Triggers after Cancel stay dead
	trigger.Trigger()
	time.Sleep(50 * time.Millisecond)
	req.Zero(fired.Load())
}
