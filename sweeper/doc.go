// Package sweeper schedules the retention jobs of a phoneauth engine with
// gocron: an hourly purge of spent challenges and stale attempt records,
// and a daily statistics log line.
//
// Jobs run in singleton mode, so a slow purge is rescheduled instead of
// overlapping with the next run.
package sweeper
