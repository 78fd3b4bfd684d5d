package config

import (
	"slices"
	"strings"
)

// RetryBackoffMode is the download.retry_backoff setting: how the delay
// between retries of a failed fetch grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffModes = map[string]RetryBackoffMode{
	string(RetryBackoffFixed):       RetryBackoffFixed,
	string(RetryBackoffLinear):      RetryBackoffLinear,
	string(RetryBackoffExponential): RetryBackoffExponential,
}

// NormalizeRetryBackoff maps a retry_backoff value to its mode, ignoring case
// and surrounding space. Unknown values map to "".
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffModes[strings.ToLower(strings.TrimSpace(raw))]
}

// RetryBackoffModes lists the accepted retry_backoff values in sorted order.
func RetryBackoffModes() []string {
	modes := make([]string, 0, len(retryBackoffModes))
	for k := range retryBackoffModes {
		modes = append(modes, k)
	}
	slices.Sort(modes)
	return modes
}
