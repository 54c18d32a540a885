package binder

import (
	"sync/atomic"
	"time"

	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/loop"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering a single transact() call from dispatch to terminal frame.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks transaction counts, bytes transferred and outcomes across
// a Client's Command Loops.
type Metrics struct {
	TwoWayTransactions  atomic.Uint64
	OnewayTransactions  atomic.Uint64
	InboundTransactions atomic.Uint64

	BytesSent     atomic.Uint64
	BytesReceived atomic.Uint64

	DeadObjectReplies atomic.Uint64
	FailedReplies     atomic.Uint64
	BadMessageReplies atomic.Uint64
	DriverErrors      atomic.Uint64

	BuffersFreed atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordTransaction records one completed outgoing transact() call:
// bytesSent is the flat payload size, oneway/status classify the
// outcome, and latencyNs is wall time from dispatch to terminal frame.
func (m *Metrics) RecordTransaction(bytesSent uint64, oneway bool, status int32, latencyNs uint64) {
	if oneway {
		m.OnewayTransactions.Add(1)
	} else {
		m.TwoWayTransactions.Add(1)
	}
	m.BytesSent.Add(bytesSent)
	m.recordOutcome(status)
	m.recordLatency(latencyNs)
}

// RecordInbound records one BR_TRANSACTION dispatched to a local object.
func (m *Metrics) RecordInbound(bytesReceived uint64) {
	m.InboundTransactions.Add(1)
	m.BytesReceived.Add(bytesReceived)
}

// RecordBufferFree records one BC_FREE_BUFFER issued for an arena payload.
func (m *Metrics) RecordBufferFree() {
	m.BuffersFreed.Add(1)
}

// ObserveInboundTransaction implements interfaces.Observer, the Command
// Loop's metrics seam: Client.NewLoop wires a Client's Metrics in as every
// Loop's observer, so an inbound BR_TRANSACTION is recorded the moment
// dispatchInboundTransaction sees it.
func (m *Metrics) ObserveInboundTransaction(bytesReceived uint64) {
	m.RecordInbound(bytesReceived)
}

// ObserveBufferFree implements interfaces.Observer, recording one
// BC_FREE_BUFFER the Command Loop issued.
func (m *Metrics) ObserveBufferFree() {
	m.RecordBufferFree()
}

var _ interfaces.Observer = (*Metrics)(nil)

func (m *Metrics) recordOutcome(status int32) {
	switch status {
	case loop.StatusOK:
	case loop.StatusDeadObject:
		m.DeadObjectReplies.Add(1)
	case loop.StatusFailed:
		m.FailedReplies.Add(1)
	case loop.StatusBadMessage:
		m.BadMessageReplies.Add(1)
	default:
		m.DriverErrors.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without
// further synchronization.
type MetricsSnapshot struct {
	TwoWayTransactions  uint64
	OnewayTransactions  uint64
	InboundTransactions uint64

	BytesSent     uint64
	BytesReceived uint64

	DeadObjectReplies uint64
	FailedReplies     uint64
	BadMessageReplies uint64
	DriverErrors      uint64

	BuffersFreed uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalTransactions uint64
}

// Snapshot creates a point-in-time snapshot of these metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TwoWayTransactions:  m.TwoWayTransactions.Load(),
		OnewayTransactions:  m.OnewayTransactions.Load(),
		InboundTransactions: m.InboundTransactions.Load(),
		BytesSent:           m.BytesSent.Load(),
		BytesReceived:       m.BytesReceived.Load(),
		DeadObjectReplies:   m.DeadObjectReplies.Load(),
		FailedReplies:       m.FailedReplies.Load(),
		BadMessageReplies:   m.BadMessageReplies.Load(),
		DriverErrors:        m.DriverErrors.Load(),
		BuffersFreed:        m.BuffersFreed.Load(),
	}
	snap.TotalTransactions = snap.TwoWayTransactions + snap.OnewayTransactions

	opCount := m.OpCount.Load()
	totalLatencyNs := m.TotalLatencyNs.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
		snap.LatencyP50Ns = m.calculatePercentile(0.50, opCount)
		snap.LatencyP99Ns = m.calculatePercentile(0.99, opCount)
	}

	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64, totalOps uint64) uint64 {
	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	prevCount := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
		prevCount = bucketCount
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	m.TwoWayTransactions.Store(0)
	m.OnewayTransactions.Store(0)
	m.InboundTransactions.Store(0)
	m.BytesSent.Store(0)
	m.BytesReceived.Store(0)
	m.DeadObjectReplies.Store(0)
	m.FailedReplies.Store(0)
	m.BadMessageReplies.Store(0)
	m.DriverErrors.Store(0)
	m.BuffersFreed.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
}
