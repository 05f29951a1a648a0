package strata

import "strings"

// flattenMap converts a nested map to a flat map keyed by dotted paths.
func flattenMap(nested map[string]any, prefix string) map[string]any {
	flat := make(map[string]any)
	for key, value := range nested {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if sub, isMap := value.(map[string]any); isMap {
			for subPath, subValue := range flattenMap(sub, path) {
				flat[subPath] = subValue
			}
		} else {
			flat[path] = value
		}
	}
	return flat
}

// setNestedValue sets a value in a nested map using a dotted path, creating
// intermediate maps as needed. A non-map intermediate is overwritten.
func setNestedValue(nested map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := nested
	for _, segment := range segments[:len(segments)-1] {
		next, exists := current[segment]
		if m, isMap := next.(map[string]any); exists && isMap {
			current = m
			continue
		}
		m := make(map[string]any)
		current[segment] = m
		current = m
	}
	current[segments[len(segments)-1]] = value
}

// deleteNestedValue removes the value at a dotted path, leaving intermediate
// maps in place.
func deleteNestedValue(nested map[string]any, path string) {
	segments := strings.Split(path, ".")
	current := nested
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// navigateToPath walks a nested map to the value at a dotted path. Returns
// nil if the path does not exist.
func navigateToPath(nested map[string]any, basePath string) any {
	if basePath == "" {
		return nested
	}
	current := any(nested)
	for _, segment := range strings.Split(strings.TrimSuffix(basePath, "."), ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		value, exists := m[segment]
		if !exists {
			return nil
		}
		current = value
	}
	return current
}

// isValidKeySegment checks that a single path segment is a valid bare key:
// ASCII letters, digits, underscores, and dashes.
func isValidKeySegment(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !(isLetter || isDigit || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
