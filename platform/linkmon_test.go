package platform

import (
	"math"
	"strings"
	"testing"

	"holzapfel.net/gorelay/relay"
)

func TestCalculateLinkStats(t *testing.T) {
	data := []int{-80, -70, -60, -50, -40}

	stats := calculateLinkStats(data)

	expectedMin := -80
	expectedMax := -40
	expectedMean := -60.0
	expectedMedian := -60.0
	expectedStdDev := math.Sqrt(200) // sqrt(((-80+60)^2 + (-70+60)^2 + 0 + (-50+60)^2 + (-40+60)^2) / 5)

	if stats.min != expectedMin {
		t.Errorf("Expected min to be %d, got %d", expectedMin, stats.min)
	}
	if stats.max != expectedMax {
		t.Errorf("Expected max to be %d, got %d", expectedMax, stats.max)
	}
	if stats.mean != expectedMean {
		t.Errorf("Expected mean to be %.2f, got %.2f", expectedMean, stats.mean)
	}
	if stats.median != expectedMedian {
		t.Errorf("Expected median to be %.2f, got %.2f", expectedMedian, stats.median)
	}
	if math.Abs(stats.stdDev-expectedStdDev) > 1e-9 {
		t.Errorf("Expected stdDev to be %.2f, got %.2f", expectedStdDev, stats.stdDev)
	}
}

func TestCalculateLinkStats_Empty(t *testing.T) {
	stats := calculateLinkStats([]int{})
	if stats.min != 0 || stats.max != 0 || stats.mean != 0 || stats.median != 0 || stats.stdDev != 0 {
		t.Errorf("Expected all stats to be 0 for empty data, got %+v", stats)
	}
}

func TestCalculateLinkStats_EvenLength(t *testing.T) {
	stats := calculateLinkStats([]int{-80, -70, -60, -50})
	expectedMedian := -65.0
	if stats.median != expectedMedian {
		t.Errorf("Expected median for even length data to be %.2f, got %.2f", expectedMedian, stats.median)
	}
}

func TestLinkMonitorCountsEvents(t *testing.T) {
	lm := NewLinkMonitor()

	lm.Record(relay.Event{Kind: relay.EventReceived, RSSI: -55})
	lm.Record(relay.Event{Kind: relay.EventReceived, RSSI: -65})
	lm.Record(relay.Event{Kind: relay.EventSent, Button: relay.ButtonA})
	lm.Record(relay.Event{Kind: relay.EventDecodeError})
	lm.Record(relay.Event{Kind: relay.EventSendFailed})
	lm.Record(relay.Event{Kind: relay.EventReceiveFailed})

	if lm.received != 2 {
		t.Errorf("Expected 2 received, got %d", lm.received)
	}
	if lm.sent != 1 {
		t.Errorf("Expected 1 sent, got %d", lm.sent)
	}
	if lm.decodeErrs != 1 {
		t.Errorf("Expected 1 decode error, got %d", lm.decodeErrs)
	}
	if lm.transportErrs != 2 {
		t.Errorf("Expected 2 transport errors, got %d", lm.transportErrs)
	}
	if lm.history.Len() != 2 {
		t.Fatalf("Expected 2 RSSI readings, got %d", lm.history.Len())
	}
	if lm.history.At(0) != -55 || lm.history.At(1) != -65 {
		t.Errorf("Expected RSSI history [-55 -65], got [%d %d]", lm.history.At(0), lm.history.At(1))
	}
}

func TestLinkMonitorBoundsHistory(t *testing.T) {
	lm := NewLinkMonitor()

	for i := 0; i < maxRSSIHistory+10; i++ {
		lm.Record(relay.Event{Kind: relay.EventReceived, RSSI: -i})
	}

	if lm.history.Len() != maxRSSIHistory {
		t.Fatalf("Expected history to stay at %d entries, got %d", maxRSSIHistory, lm.history.Len())
	}
	// The ten oldest readings must have been evicted.
	if lm.history.At(0) != -10 {
		t.Errorf("Expected oldest kept reading to be -10, got %d", lm.history.At(0))
	}
}

func TestLinkMonitorText(t *testing.T) {
	lm := NewLinkMonitor()
	lm.Record(relay.Event{Kind: relay.EventReceived, RSSI: -60})
	lm.Record(relay.Event{Kind: relay.EventSent, Button: relay.ButtonB})

	up := lm.Text(true, -60)
	if !strings.Contains(up, "UP") {
		t.Errorf("Expected link state UP in %q", up)
	}
	if !strings.Contains(up, "-60 dBm") {
		t.Errorf("Expected current RSSI in %q", up)
	}

	down := lm.Text(false, -60)
	if !strings.Contains(down, "DOWN") {
		t.Errorf("Expected link state DOWN in %q", down)
	}
}
