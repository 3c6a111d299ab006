package engine

// DefaultMaxRequests is the default number of requests a run may apply.
// Generator rules that keep proposing values hit this instead of looping
// forever.
const DefaultMaxRequests = 10000

// QuotaEnforcer counts the requests applied by one run.
// Owned by the run and touched only by Drain, so it needs no locking.
type QuotaEnforcer struct {
	maxRequests int
	current     int
}

// NewQuotaEnforcer creates an enforcer. A non-positive limit disables it.
func NewQuotaEnforcer(maxRequests int) *QuotaEnforcer {
	return &QuotaEnforcer{maxRequests: maxRequests}
}

// Check counts one request and returns a QUOTA_EXCEEDED error once the
// count passes the limit.
func (q *QuotaEnforcer) Check(runID string) error {
	q.current++
	if q.maxRequests > 0 && q.current > q.maxRequests {
		return NewQuotaError(runID, q.current, q.maxRequests)
	}
	return nil
}

func (q *QuotaEnforcer) Current() int { return q.current }

func (q *QuotaEnforcer) MaxRequests() int { return q.maxRequests }
