package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroupHaltStopsWorkers(t *testing.T) {
	var g Group
	var stopped atomic.Int32

	for i := 0; i < 4; i++ {
		g.Go(func() {
			<-g.HaltCh()
			stopped.Add(1)
		})
	}

	g.Halt()
	require.Equal(t, int32(4), stopped.Load())
}

func TestGroupHaltWaitsForCompletion(t *testing.T) {
	var g Group
	var finished atomic.Bool

	g.Go(func() {
		<-g.HaltCh()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	g.Halt()
	require.True(t, finished.Load())
}

func TestGroupZeroValueHalt(t *testing.T) {
	var g Group
	g.Halt()
}
