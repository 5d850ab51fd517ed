package pathology

import "strings"

// KeyFromModelID extracts the pathology key from a versioned model
// identifier such as "mc_chestradiography_pleural_effusion:v1.20250828".
//
// The "_<key>:" convention is tried first. The second pass accepts a key
// anywhere it stands as a whole token, bounded by the ends of the id or by
// '_', ':' or '-', so bare identifiers like "pneumothorax" still resolve
// while "abnormality" does not match "normal". Longer keys are tried before
// shorter ones.
func KeyFromModelID(modelID string) (string, bool) {
	id := strings.ToLower(modelID)
	if id == "" {
		return "", false
	}

	for _, key := range matchOrder {
		if strings.Contains(id, "_"+key+":") {
			return key, true
		}
	}
	for _, key := range matchOrder {
		if containsToken(id, key) {
			return key, true
		}
	}
	return "", false
}

func containsToken(s, token string) bool {
	for from := 0; from+len(token) <= len(s); {
		i := strings.Index(s[from:], token)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(token)
		if (start == 0 || isTokenBoundary(s[start-1])) && (end == len(s) || isTokenBoundary(s[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isTokenBoundary(c byte) bool {
	return c == '_' || c == ':' || c == '-'
}

// KeyFromFilename guesses the pathology from an upload's file name or path,
// accepting the key as-is, with spaces for underscores, or with the
// underscores removed. Names with no match yield DefaultKey.
func KeyFromFilename(filename string) string {
	name := strings.ToLower(filename)

	for _, key := range matchOrder {
		variants := []string{
			key,
			strings.ReplaceAll(key, "_", " "),
			strings.ReplaceAll(key, "_", ""),
		}
		for _, v := range variants {
			if strings.Contains(name, v) {
				return key
			}
		}
	}

	return DefaultKey
}
