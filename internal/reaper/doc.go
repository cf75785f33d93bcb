// Package reaper возвращает в очередь events, брошенные упавшим poller'ом.
//
// EventRepo.Fetch переводит events в PROCESSING. Если процесс падает до
// отчёта, event остаётся в этом статусе навсегда. Reaper периодически
// возвращает в PENDING events, захваченные раньше StaleAfter.
//
// Использование:
//
//	r := reaper.New(reaper.Config{
//	    Events:     eventRepo,
//	    Lock:       repo.NewAdvisoryLock(pool, repo.ReaperLockKey), // опционально
//	    StaleAfter: 5 * time.Minute,
//	    Interval:   time.Minute,
//	    Logger:     logger,
//	})
//	r.Start(ctx)
//	defer r.Stop()
//
// Leader Election:
//
// При нескольких экземплярах Tick выполняет только владелец
// pg_try_advisory_lock; остальные пропускают tick.
package reaper
