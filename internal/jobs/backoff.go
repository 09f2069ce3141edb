package jobs

import "time"

const maxBackoff = 5 * time.Minute

// Backoff returns the delay before retrying a job that has failed
// `attempt` times: base doubled per prior attempt, capped.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
