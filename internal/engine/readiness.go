package engine

// Readiness is the retrieval path's lifecycle state. The index loads on a
// background worker after the front door starts accepting requests; until
// it reports in, retrieval turns get a transient reply.
type Readiness int

const (
	NotReady Readiness = iota
	Ready
	Failed
)

func (r Readiness) String() string {
	switch r {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
