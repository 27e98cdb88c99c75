package task

import (
	"context"
	"sync"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

// Cancel stops a scheduled job.
type Cancel func()

// ScheduleEvery dispatches t every interval until cancelled or the router closes.
// The first dispatch happens after one interval.
func (tr *TaskRouter) ScheduleEvery(interval time.Duration, t Task) Cancel {
	return tr.schedule(interval, interval, t)
}

// ScheduleDailyAtUTC dispatches t at the next hour:minute UTC and every 24 hours after.
// Out-of-range hour and minute values are clamped.
func (tr *TaskRouter) ScheduleDailyAtUTC(hour, minute int, t Task) Cancel {
	now := time.Now().UTC()
	first := nextDailyUTC(now, clampInt(hour, 0, 23), clampInt(minute, 0, 59)).Sub(now)
	return tr.schedule(first, 24*time.Hour, t)
}

func (tr *TaskRouter) schedule(first, interval time.Duration, t Task) Cancel {
	if interval <= 0 {
		return func() {}
	}
	cancelCh := make(chan struct{})
	var once sync.Once

	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return func() {}
	}
	tr.wg.Add(1)
	tr.mu.Unlock()
	go func() {
		defer tr.wg.Done()
		timer := time.NewTimer(first)
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				if err := tr.Dispatch(context.Background(), t); err != nil && err != ErrRouterClosed {
					log.ApplicationLogger().Warn("Scheduled task not dispatched", "type", t.Type, "err", err)
				}
				timer.Reset(interval)
			case <-cancelCh:
				return
			case <-tr.stopCh:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(cancelCh) }) }
}

// nextDailyUTC returns the first hour:minute UTC strictly after from.
func nextDailyUTC(from time.Time, hour, minute int) time.Time {
	target := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, time.UTC)
	if !from.Before(target) {
		target = target.Add(24 * time.Hour)
	}
	return target
}

func clampInt(v, lo, hi int) int {
	return max(min(v, hi), lo)
}
