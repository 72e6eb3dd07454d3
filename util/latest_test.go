package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatestStoresNewestValue(t *testing.T) {
	l := NewLatest[string]()
	l.Send("first")
	l.Send("second")
	assert.Equal(t, "second", l.Value(), "Value should be the last sent")
}

func TestLatestNotificationCoalesces(t *testing.T) {
	l := NewLatest[int]()

	l.Send(1)
	l.Send(2)
	l.Send(3)

	assert.True(t, l.HasPending(), "should have a pending notification")
	select {
	case <-l.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-l.Channel():
		t.Fatal("multiple sends must coalesce into one notification")
	default:
	}
	assert.Equal(t, 3, l.Value(), "Value should be the newest one")
	assert.False(t, l.HasPending(), "nothing pending after the read")
}

func TestLatestWithFrameShapedValues(t *testing.T) {
	type line struct {
		Text string
		X, Y int
	}
	l := NewLatest[[]line]()
	l.Send([]line{{Text: "node-a", X: 35}})
	l.Send([]line{{Text: "node-a", X: 35}, {Text: "RX: hi", Y: 11}})

	got := l.Value()
	assert.Len(t, got, 2)
	assert.Equal(t, "RX: hi", got[1].Text)
}

func TestLatestConcurrentWriters(t *testing.T) {
	l := NewLatest[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			l.Send(i)
		}
		close(done)
	}()

	lastRead := -1
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-l.Channel():
				val := l.Value()
				if val < lastRead {
					t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
				}
				lastRead = val
			case <-done:
				select {
				case <-l.Channel():
					val := l.Value()
					if val < lastRead {
						t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
					}
				default:
				}
				return
			}
		}
	}()

	wg.Wait()
	assert.Equal(t, 999, l.Value(), "final value should be the last write")
}
