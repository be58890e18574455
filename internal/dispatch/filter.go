package dispatch

import "strings"

// Filter decides whether a subscriber accepts a message tagged with step.
type Filter func(step string) bool

// Steps accepts an allowlist of exact step names. Effectors include their own
// registered name so the retry sweep can route retries back to them.
func Steps(names ...string) Filter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(step string) bool {
		_, ok := set[step]
		return ok
	}
}

// Prefixes accepts any step starting with one of the given prefixes; the step
// advancer uses it to catch every account-type step.
func Prefixes(prefixes ...string) Filter {
	return func(step string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(step, p) {
				return true
			}
		}
		return false
	}
}
