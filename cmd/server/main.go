// cleanupd archives aged rows out of a live PostgreSQL table on an
// adaptive schedule and keeps the host's disk below a usage threshold.
//
// Usage:
//
//	# Start the scheduler, disk guardian and monitoring API
//	cleanupd serve --config /etc/cleanupd/config.yaml
//
//	# Run a single cleanup with the daily settings and exit
//	cleanupd run-once --retention-days 14
//
//	# Print trend analysis of recorded runs
//	cleanupd analyze --days 7
package main

func main() {
	Execute()
}
