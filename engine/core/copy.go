package core

// CloneMap returns a shallow copy of the provided map. A nil input yields nil
// so callers can distinguish "absent" from "empty".
func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CloneVector copies an embedding so callers cannot alias stored state.
func CloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
