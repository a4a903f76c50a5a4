package metrics

import (
	"context"
	"fmt"
	"maps"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/daniellavrushin/lure/fingerprint"
	"github.com/daniellavrushin/lure/interaction"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	rateWindow       = 60
	maxRecent        = 20
	maxRecentEvents  = 50
	maxTopSources    = 100
	maxPreviewLength = 120
)

// Collector aggregates what the engine observes. It satisfies the engine's
// Observer interface and is safe for concurrent use.
type Collector struct {
	TotalConnections  uint64            `json:"total_connections"`
	ActiveConnections uint64            `json:"active_connections"`
	TotalInteractions uint64            `json:"total_interactions"`
	EmptyInteractions uint64            `json:"empty_interactions"`
	QuietInteractions uint64            `json:"quiet_interactions"`
	FailedConnections uint64            `json:"failed_connections"`
	DroppedRecords    uint64            `json:"dropped_records"`
	BytesCaptured     uint64            `json:"bytes_captured"`
	PortDist          map[string]uint64 `json:"port_dist"`
	TopSources        map[string]uint64 `json:"top_sources"`
	FailureDist       map[string]uint64 `json:"failure_dist"`
	TLSHellos         uint64            `json:"tls_hellos"`
	TopServerNames    map[string]uint64 `json:"top_server_names"`
	CurrentCPS        float64           `json:"current_cps"`
	CurrentIPS        float64           `json:"current_ips"`

	ConnectionRate     []TimeSeriesPoint `json:"connection_rate"`
	InteractionRate    []TimeSeriesPoint `json:"interaction_rate"`
	StartTime          time.Time         `json:"start_time"`
	Uptime             string            `json:"uptime"`
	MemoryUsage        MemoryStats       `json:"memory_usage"`
	Process            ProcessStats      `json:"process"`
	Listeners          []ListenerStatus  `json:"listeners"`
	RecentInteractions []InteractionLog  `json:"recent_interactions"`
	RecentEvents       []SystemEvent     `json:"recent_events"`

	mu                   sync.RWMutex
	proc                 *process.Process
	lastUpdate           time.Time
	lastConnCount        uint64
	lastInteractionCount uint64
}

type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type MemoryStats struct {
	Allocated uint64 `json:"allocated"`
	System    uint64 `json:"system"`
	HeapInuse uint64 `json:"heap_inuse"`
	NumGC     uint32 `json:"num_gc"`
}

type ProcessStats struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

type ListenerStatus struct {
	Port    int       `json:"port"`
	Address string    `json:"address"`
	Since   time.Time `json:"since"`
}

type InteractionLog struct {
	Timestamp string `json:"timestamp"`
	Port      int    `json:"port"`
	Source    string `json:"source"`
	Bytes     int    `json:"bytes"`
	Preview   string `json:"preview"`
	Quiet     bool   `json:"quiet"`
}

type SystemEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

var (
	metricsCollector *Collector
	metricsOnce      sync.Once
)

// GetMetricsCollector returns the process-wide collector, starting its
// once-a-second rate sampler on first use.
func GetMetricsCollector() *Collector {
	metricsOnce.Do(func() {
		metricsCollector = NewCollector()
		go metricsCollector.Run(context.Background())
	})
	return metricsCollector
}

// NewCollector returns an idle collector; rates only move once Run is going.
func NewCollector() *Collector {
	now := time.Now()
	c := &Collector{
		StartTime:          now,
		PortDist:           make(map[string]uint64),
		TopSources:         make(map[string]uint64),
		FailureDist:        make(map[string]uint64),
		TopServerNames:     make(map[string]uint64),
		ConnectionRate:     make([]TimeSeriesPoint, 0, rateWindow),
		InteractionRate:    make([]TimeSeriesPoint, 0, rateWindow),
		RecentInteractions: make([]InteractionLog, 0, maxRecent),
		RecentEvents:       make([]SystemEvent, 0, maxRecentEvents),
		lastUpdate:         now,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

func (m *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateRates(time.Now())
			m.updateSystemStats()
		}
	}
}

func (m *Collector) updateRates(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := now.Sub(m.lastUpdate).Seconds()
	if duration <= 0 {
		return
	}

	m.CurrentCPS = float64(m.TotalConnections-m.lastConnCount) / duration
	m.CurrentIPS = float64(m.TotalInteractions-m.lastInteractionCount) / duration

	nowMs := now.UnixMilli()
	m.ConnectionRate = appendPoint(m.ConnectionRate, TimeSeriesPoint{Timestamp: nowMs, Value: m.CurrentCPS})
	m.InteractionRate = appendPoint(m.InteractionRate, TimeSeriesPoint{Timestamp: nowMs, Value: m.CurrentIPS})

	m.lastUpdate = now
	m.lastConnCount = m.TotalConnections
	m.lastInteractionCount = m.TotalInteractions

	m.Uptime = formatDuration(now.Sub(m.StartTime))
}

func appendPoint(series []TimeSeriesPoint, p TimeSeriesPoint) []TimeSeriesPoint {
	series = append(series, p)
	if len(series) > rateWindow {
		series = series[len(series)-rateWindow:]
	}
	return series
}

func (m *Collector) updateSystemStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ps := ProcessStats{PID: int32(os.Getpid()), Goroutines: runtime.NumGoroutine()}
	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			ps.CPUPercent = cpu
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			ps.RSS = mem.RSS
		}
		if threads, err := m.proc.NumThreads(); err == nil {
			ps.Threads = threads
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.MemoryUsage = MemoryStats{
		Allocated: memStats.Alloc,
		System:    memStats.Sys,
		HeapInuse: memStats.HeapInuse,
		NumGC:     memStats.NumGC,
	}
	m.Process = ps
}

func (m *Collector) ListenerStarted(port int, addr string) {
	m.mu.Lock()
	m.Listeners = append(m.Listeners, ListenerStatus{Port: port, Address: addr, Since: time.Now()})
	m.mu.Unlock()

	m.RecordEvent("info", fmt.Sprintf("Listening on %s", addr))
}

func (m *Collector) ConnectionAccepted(port int, seq uint64, remote string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections++
	m.ActiveConnections++
	m.PortDist[strconv.Itoa(port)]++
}

func (m *Collector) ConnectionClosed(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ActiveConnections > 0 {
		m.ActiveConnections--
	}
}

func (m *Collector) ConnectionFailed(port int, stage string, err error) {
	m.mu.Lock()
	m.FailedConnections++
	m.FailureDist[stage]++
	m.mu.Unlock()

	// accept failures can repeat quickly, keep them out of the event ring
	if stage != "accept" {
		m.RecordEvent("warn", fmt.Sprintf("port %d %s failed: %v", port, stage, err))
	}
}

func (m *Collector) InteractionCaptured(port int, rec interaction.Record, quiet bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalInteractions++
	m.BytesCaptured += uint64(len(rec.Data))
	if rec.Data == "" {
		m.EmptyInteractions++
	}
	if quiet {
		m.QuietInteractions++
	} else {
		countTop(m.TopSources, rec.IPAddress)
	}

	entry := InteractionLog{
		Timestamp: rec.Timestamp,
		Port:      port,
		Source:    rec.IPAddress,
		Bytes:     len(rec.Data),
		Preview:   preview(rec.Data),
		Quiet:     quiet,
	}
	m.RecentInteractions = append([]InteractionLog{entry}, m.RecentInteractions...)
	if len(m.RecentInteractions) > maxRecent {
		m.RecentInteractions = m.RecentInteractions[:maxRecent]
	}
}

func (m *Collector) TLSClientHello(port int, remote string, hello fingerprint.ClientHello) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TLSHellos++
	name := hello.ServerName
	if name == "" {
		name = "(none)"
	}
	countTop(m.TopServerNames, name)
}

// RecordDrop counts a record the sink could not persist.
func (m *Collector) RecordDrop(rec interaction.Record, err error) {
	m.mu.Lock()
	m.DroppedRecords++
	m.mu.Unlock()

	m.RecordEvent("error", fmt.Sprintf("record from %s dropped: %v", rec.IPAddress, err))
}

func (m *Collector) RecordEvent(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event := SystemEvent{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}

	m.RecentEvents = append([]SystemEvent{event}, m.RecentEvents...)
	if len(m.RecentEvents) > maxRecentEvents {
		m.RecentEvents = m.RecentEvents[:maxRecentEvents]
	}
}

// GetSnapshot returns a deep copy safe to marshal without holding the lock.
func (m *Collector) GetSnapshot() *Collector {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Collector{
		TotalConnections:   m.TotalConnections,
		ActiveConnections:  m.ActiveConnections,
		TotalInteractions:  m.TotalInteractions,
		EmptyInteractions:  m.EmptyInteractions,
		QuietInteractions:  m.QuietInteractions,
		FailedConnections:  m.FailedConnections,
		DroppedRecords:     m.DroppedRecords,
		BytesCaptured:      m.BytesCaptured,
		PortDist:           maps.Clone(m.PortDist),
		TopSources:         maps.Clone(m.TopSources),
		FailureDist:        maps.Clone(m.FailureDist),
		TLSHellos:          m.TLSHellos,
		TopServerNames:     maps.Clone(m.TopServerNames),
		CurrentCPS:         m.CurrentCPS,
		CurrentIPS:         m.CurrentIPS,
		ConnectionRate:     smoothTimeSeriesData(m.ConnectionRate, 3),
		InteractionRate:    smoothTimeSeriesData(m.InteractionRate, 3),
		StartTime:          m.StartTime,
		Uptime:             m.Uptime,
		MemoryUsage:        m.MemoryUsage,
		Process:            m.Process,
		Listeners:          nonNil(m.Listeners),
		RecentInteractions: nonNil(m.RecentInteractions),
		RecentEvents:       nonNil(m.RecentEvents),
	}
}

// nonNil copies s so the JSON form is [] rather than null.
func nonNil[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// pruneMin drops the least seen key.
// countTop bumps key, evicting the least seen entry first when key is new
// and the map is full, so a fresh key is never the one evicted.
func countTop(counts map[string]uint64, key string) {
	if _, ok := counts[key]; !ok && len(counts) >= maxTopSources {
		pruneMin(counts)
	}
	counts[key]++
}

func pruneMin(counts map[string]uint64) {
	var minCount uint64 = ^uint64(0)
	var minKey string

	for key, count := range counts {
		if count < minCount {
			minCount = count
			minKey = key
		}
	}

	delete(counts, minKey)
}

func preview(data string) string {
	r := []rune(data)
	if len(r) <= maxPreviewLength {
		return data
	}
	return string(r[:maxPreviewLength]) + "..."
}

func smoothTimeSeriesData(data []TimeSeriesPoint, windowSize int) []TimeSeriesPoint {
	if len(data) <= windowSize {
		return nonNil(data)
	}

	smoothed := make([]TimeSeriesPoint, len(data))

	for i := range data {
		sum := 0.0
		count := 0

		for j := max(0, i-windowSize/2); j <= min(len(data)-1, i+windowSize/2); j++ {
			sum += data[j].Value
			count++
		}

		smoothed[i] = TimeSeriesPoint{
			Timestamp: data[i].Timestamp,
			Value:     sum / float64(count),
		}
	}

	return smoothed
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
