package export

import (
	"fmt"
	"time"
)

// FileName derives a filesystem-safe export name from a policy name:
// every non-alphanumeric rune becomes an underscore and a millisecond
// timestamp avoids collisions between repeated exports.
func FileName(policyName, ext string) string {
	if policyName == "" {
		policyName = "simulation"
	}
	return fmt.Sprintf("%s_%d.%s", sanitize(policyName), time.Now().UnixMilli(), ext)
}

// ComparisonFileName names a two-policy comparison export.
func ComparisonFileName(ext string) string {
	return fmt.Sprintf("comparison_%d.%s", time.Now().UnixMilli(), ext)
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
