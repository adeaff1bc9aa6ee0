package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI discards everything. It is the default metrics sink when no
// InfluxDB is configured.
type MockWriteAPI struct{}

// WriteRecord writes asynchronously line protocol record into bucket.
func (m *MockWriteAPI) WriteRecord(line string) {}

// WritePoint writes asynchronously Point into bucket.
func (m *MockWriteAPI) WritePoint(point *write.Point) {}

// Flush forces all pending writes from the buffer to be sent
func (m *MockWriteAPI) Flush() {}

// Close flushes and stops the writer.
func (m *MockWriteAPI) Close() {}

// Errors returns a channel for reading errors which occurs during async writes.
func (m *MockWriteAPI) Errors() <-chan error { return nil }

// RecordingWriteAPI keeps every point written to it, for tests.
type RecordingWriteAPI struct {
	MockWriteAPI
	mu     sync.Mutex
	points []*write.Point
}

func (r *RecordingWriteAPI) WritePoint(point *write.Point) {
	r.mu.Lock()
	r.points = append(r.points, point)
	r.mu.Unlock()
}

// Points returns the points written so far.
func (r *RecordingWriteAPI) Points() []*write.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*write.Point(nil), r.points...)
}

// Count returns how many points named measurement were written.
func (r *RecordingWriteAPI) Count(measurement string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.points {
		if p.Name() == measurement {
			n++
		}
	}
	return n
}
