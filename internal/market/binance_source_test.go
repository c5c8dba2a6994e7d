package market

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamStopSignalsOnce(t *testing.T) {
	// Close and the subscription monitor can both try to stop the same
	// stream during shutdown; racing closers must not panic.
	stop := &streamStop{c: make(chan struct{})}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop.signal()
		}()
	}
	wg.Wait()

	select {
	case <-stop.c:
	default:
		t.Fatal("stop channel not closed")
	}
	assert.NotPanics(t, stop.signal)
}
