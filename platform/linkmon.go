package platform

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gammazero/deque"

	"holzapfel.net/gorelay/relay"
)

// maxRSSIHistory bounds the RSSI window so the statistics describe the
// recent link, not the whole uptime.
const maxRSSIHistory = 500

// LinkMonitor keeps a rolling window of received signal strengths and
// counters of relay activity. The TUI renders it into the link pane; it is
// fed from HandleEvent on the control loop goroutine.
type LinkMonitor struct {
	mu            sync.Mutex
	history       *deque.Deque[int]
	received      int
	sent          int
	decodeErrs    int
	transportErrs int
}

func NewLinkMonitor() *LinkMonitor {
	lm := &LinkMonitor{
		history: new(deque.Deque[int]),
	}
	lm.history.Grow(maxRSSIHistory)
	return lm
}

// Record updates the counters and the RSSI window from one relay event.
func (lm *LinkMonitor) Record(ev relay.Event) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	switch ev.Kind {
	case relay.EventReceived:
		lm.received++
		if lm.history.Len() == maxRSSIHistory {
			lm.history.PopFront()
		}
		lm.history.PushBack(ev.RSSI)
	case relay.EventSent:
		lm.sent++
	case relay.EventDecodeError:
		lm.decodeErrs++
	case relay.EventSendFailed, relay.EventReceiveFailed:
		lm.transportErrs++
	}
}

// Text renders the two lines of the link pane. The caller supplies the
// current link state and signal strength because both live in the
// transceiver, not in the event stream.
func (lm *LinkMonitor) Text(linkUp bool, rssi int) string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	state := "[green]UP[white]"
	if !linkUp {
		state = "[#ff0000]DOWN[white]"
	}
	line1 := fmt.Sprintf("[yellow]Link:[white] %s   [yellow]RX:[white] %-4d [yellow]TX:[white] %-4d [yellow]Undecodable:[white] %-3d [yellow]Link errors:[white] %d",
		state, lm.received, lm.sent, lm.decodeErrs, lm.transportErrs)

	data := make([]int, lm.history.Len())
	for i := range lm.history.Len() {
		data[i] = lm.history.At(i)
	}
	stats := calculateLinkStats(data)
	line2 := fmt.Sprintf("[yellow]RSSI:[white] %4d dBm   [min|mean|max]: [%4d|%4.0f|%4d]   stddev: %5.1f",
		rssi, stats.min, stats.mean, stats.max, stats.stdDev)

	return line1 + "\n" + line2
}

type linkStats struct {
	min    int
	max    int
	mean   float64
	median float64
	stdDev float64
}

func calculateLinkStats(data []int) linkStats {
	if len(data) == 0 {
		return linkStats{}
	}

	// Min, Max, Sum
	var sum int
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	// Mean
	mean := float64(sum) / float64(len(data))

	// Median
	sort.Ints(data)
	var median float64
	mid := len(data) / 2
	if len(data)%2 == 0 {
		median = float64(data[mid-1]+data[mid]) / 2.0
	} else {
		median = float64(data[mid])
	}

	// Standard Deviation
	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (float64(v) - mean) * (float64(v) - mean)
	}
	stdDev := math.Sqrt(sumOfSquares / float64(len(data)))

	return linkStats{
		min:    min,
		max:    max,
		mean:   mean,
		median: median,
		stdDev: stdDev,
	}
}
