package rpc

import "strings"

// PathRules constrains which paths validatePath accepts, beyond the
// baseline syntax check. The zero value imposes no additional limits.
type PathRules struct {
	MaxLength          int
	MinSegments        int
	MaxSegments        int
	AllowedPrefixes    []string
	DisallowedPrefixes []string
}

// validatePath checks path against the baseline syntax rule
// (^[A-Za-z0-9_.]+$, non-empty, no leading/trailing dot, no "..") plus
// any additional constraints in rules. It never returns a partial
// result: either path is accepted, or it returns a *ValidationError
// whose Issues is non-empty.
func validatePath(path string, rules PathRules) error {
	var issues []string

	if path == "" {
		issues = append(issues, "path must not be empty")
	} else {
		if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
			issues = append(issues, "path must not start or end with '.'")
		}
		if strings.Contains(path, "..") {
			issues = append(issues, "path must not contain consecutive dots")
		}
		for _, r := range path {
			if !isPathRune(r) {
				issues = append(issues, "path contains invalid character "+string(r))
				break
			}
		}
	}

	if len(issues) == 0 {
		segments := strings.Split(path, ".")
		if rules.MaxLength > 0 && len(path) > rules.MaxLength {
			issues = append(issues, "path exceeds max length")
		}
		if rules.MinSegments > 0 && len(segments) < rules.MinSegments {
			issues = append(issues, "path has fewer than the minimum number of segments")
		}
		if rules.MaxSegments > 0 && len(segments) > rules.MaxSegments {
			issues = append(issues, "path has more than the maximum number of segments")
		}
		if len(rules.AllowedPrefixes) > 0 && !hasAnyPrefix(path, rules.AllowedPrefixes) {
			issues = append(issues, "path does not match any allowed prefix")
		}
		if hasAnyPrefix(path, rules.DisallowedPrefixes) {
			issues = append(issues, "path matches a disallowed prefix")
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Path: path, Issues: issues}
	}
	return nil
}

func isPathRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.':
		return true
	default:
		return false
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
