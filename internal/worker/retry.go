package worker

import "time"

// backoffDelay возвращает задержку перед retry после неудачной попытки.
//
// Exponential backoff: base после первой попытки, дальше удвоение
// с потолком max. При base=2s: 2s, 4s, 8s, ...
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
