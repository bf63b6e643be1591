package utils

// MakeMap builds a tag map from alternating keys and values. A trailing key
// without a value is dropped.
func MakeMap(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}
