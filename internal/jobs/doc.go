// Package jobs runs named periodic jobs on robfig/cron.
//
// Schedules accept cron expressions ("*/5 * * * *", "@hourly", "@every 5m"),
// Go durations ("55m") and HH:MM intervals ("00:50"). Registering a name that
// already exists replaces the previous schedule. Interval schedules get a small
// random startup spread so jobs registered together do not fire together.
//
// Jobs run inline on cron's goroutine with a per-run timeout. A run that is
// still in flight when the next tick arrives causes that tick to be skipped.
package jobs
