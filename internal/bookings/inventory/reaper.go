package inventory

import (
	"context"
	"errors"
	"time"
)

// ReapExpired expires every stale active hold, one course at a time. Each
// course lock is held only while that course is scanned.
func (l *Ledger) ReapExpired(ctx context.Context) (int, error) {
	courseIDs, err := l.holds.CoursesWithActiveHolds(ctx)
	if err != nil {
		return 0, err
	}

	var (
		reaped int
		errs   []error
	)
	for _, courseID := range courseIDs {
		if ctx.Err() != nil {
			return reaped, ctx.Err()
		}
		n, err := l.reapCourse(ctx, courseID)
		reaped += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reaped, errors.Join(errs...)
}

func (l *Ledger) reapCourse(ctx context.Context, courseID string) (int, error) {
	unlock, err := l.locks.Lock(ctx, courseID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	holds, err := l.holds.ListOccupying(ctx, courseID)
	if err != nil {
		return 0, err
	}

	now := l.clock.Now()
	reaped := 0
	for _, h := range holds {
		if !h.Stale(now) {
			continue
		}
		expired, err := l.expireLocked(ctx, h, now)
		if err != nil {
			return reaped, err
		}
		if expired {
			reaped++
		}
	}
	return reaped, nil
}

// RunReaper calls ReapExpired every interval until ctx is cancelled.
func (l *Ledger) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("Hold reaper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Hold reaper stopped")
			return
		case <-ticker.C:
			n, err := l.ReapExpired(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("Hold reaper pass failed", "error", err, "reaped", n)
				continue
			}
			if n > 0 {
				l.logger.Info("Hold reaper pass completed", "reaped", n)
			}
		}
	}
}
