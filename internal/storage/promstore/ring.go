package promstore

import "github.com/kubilitics/kubilitics-metrics/internal/models"

// ring is a fixed-capacity FIFO of points; the oldest point is overwritten
// once full. Not safe for concurrent use; Store guards it.
type ring struct {
	buf  []models.MetricPoint
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]models.MetricPoint, capacity)}
}

func (r *ring) add(p models.MetricPoint) {
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// snapshot returns the buffered points, oldest first.
func (r *ring) snapshot() []models.MetricPoint {
	out := make([]models.MetricPoint, 0, r.size)
	start := (r.head - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
