package guard

import "golang.org/x/sync/semaphore"

// Admission caps the number of simultaneous upstream calls. Acquisition is
// non-blocking: a saturated semaphore rejects immediately instead of queuing,
// which bounds latency under burst.
type Admission struct {
	sem *semaphore.Weighted
}

func NewAdmission(maxConcurrent int64) *Admission {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Admission{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Acquire claims a permit without blocking, returning ErrServerBusy when the
// cap is saturated. Every successful acquire must be paired with a Release on
// all exit paths.
func (a *Admission) Acquire() error {
	if !a.sem.TryAcquire(1) {
		return ErrServerBusy
	}
	return nil
}

func (a *Admission) Release() {
	a.sem.Release(1)
}
