// Package scheduler keeps the stored access token fresh between requests by
// running a refresh check on a cron schedule.
package scheduler
