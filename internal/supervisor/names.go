package supervisor

import "strconv"

// uniqueNames returns names with later duplicates suffixed -2, -3, ... so no
// two processes ever share a log file. A suffix that collides with a name
// given explicitly is skipped.
func uniqueNames(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = false
	}
	out := make([]string, len(names))
	for i, n := range names {
		if used, seen := taken[n]; seen && !used {
			taken[n] = true
			out[i] = n
			continue
		}
		for k := 2; ; k++ {
			candidate := n + "-" + strconv.Itoa(k)
			if _, exists := taken[candidate]; !exists {
				taken[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}
