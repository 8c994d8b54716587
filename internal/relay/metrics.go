package relay

import "time"

const (
	// rateWindow is the trailing window for the message rate. The rate uses a
	// fixed 60 s denominator even when the process is younger than the window.
	rateWindow = 60 * time.Second

	// latencyCap bounds each connection's latency buffer; the oldest sample is
	// evicted first.
	latencyCap = 50
)

// MetricsSnapshot is an immutable view assembled for broadcast and the REST
// metrics endpoint.
type MetricsSnapshot struct {
	ActiveConnections int                `json:"active_connections"`
	MessagesPerSecond float64            `json:"messages_per_second"`
	MemoryUsageMB     float64            `json:"memory_usage"`
	CPUUsagePct       float64            `json:"cpu_usage"`
	AverageLatencies  map[string]float64 `json:"average_latencies,omitempty"`
	Server            string             `json:"server"`
}

// Metrics keeps the rolling counters: the message-timestamp window, the
// per-connection latency buffers, the live connection counter and the last
// resource-usage sample. Not safe for concurrent use on its own.
type Metrics struct {
	now          func() time.Time
	messageTimes []time.Time
	latencies    map[string][]float64
	active       int
	memoryMB     float64
	cpuPct       float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		now:       time.Now,
		latencies: make(map[string][]float64),
	}
}

// RecordMessage appends the current timestamp to the rate window.
func (m *Metrics) RecordMessage() {
	m.messageTimes = append(m.messageTimes, m.now())
	m.prune()
}

// MessagesPerSecond prunes the window and returns count/60. After 60 s of
// silence the window is empty and the rate is 0.
func (m *Metrics) MessagesPerSecond() float64 {
	m.prune()
	return float64(len(m.messageTimes)) / rateWindow.Seconds()
}

func (m *Metrics) prune() {
	cutoff := m.now().Add(-rateWindow)
	i := 0
	for ; i < len(m.messageTimes); i++ {
		if !m.messageTimes[i].Before(cutoff) {
			break
		}
	}
	if i > 0 {
		m.messageTimes = append(m.messageTimes[:0], m.messageTimes[i:]...)
	}
}

// RecordLatency appends a latency sample in milliseconds, evicting the oldest
// once the buffer holds latencyCap entries.
func (m *Metrics) RecordLatency(id string, ms float64) {
	buf := append(m.latencies[id], ms)
	if len(buf) > latencyCap {
		buf = buf[len(buf)-latencyCap:]
	}
	m.latencies[id] = buf
}

// AverageLatency returns the mean of the stored samples, 0 when none exist.
func (m *Metrics) AverageLatency(id string) float64 {
	buf := m.latencies[id]
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf {
		sum += v
	}
	return sum / float64(len(buf))
}

// DropLatency discards a connection's buffer on disconnect.
func (m *Metrics) DropLatency(id string) {
	delete(m.latencies, id)
}

// ConnectionDelta adjusts the live counter. The counter clamps at zero; a
// clamp is reported so the caller can log the underflow as a defect signal.
func (m *Metrics) ConnectionDelta(d int) (clamped bool) {
	m.active += d
	if m.active < 0 {
		m.active = 0
		return true
	}
	return false
}

func (m *Metrics) ActiveConnections() int { return m.active }

// SetResourceUsage stores the latest OS sample. The gopsutil calls themselves
// happen in ResourceSampler, outside any shared lock.
func (m *Metrics) SetResourceUsage(memoryMB, cpuPct float64) {
	m.memoryMB = memoryMB
	m.cpuPct = cpuPct
}

// Snapshot assembles the current counters into one value.
func (m *Metrics) Snapshot() MetricsSnapshot {
	avgs := make(map[string]float64, len(m.latencies))
	for id := range m.latencies {
		avgs[id] = m.AverageLatency(id)
	}
	return MetricsSnapshot{
		ActiveConnections: m.active,
		MessagesPerSecond: m.MessagesPerSecond(),
		MemoryUsageMB:     m.memoryMB,
		CPUUsagePct:       m.cpuPct,
		AverageLatencies:  avgs,
	}
}
