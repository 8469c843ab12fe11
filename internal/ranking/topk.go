// Package ranking implements the custom selection and ordering primitives
// used to serve ranked trip views without a general-purpose sort.
package ranking

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is returned for misuse such as a negative k, a nil key
// function, or a non-finite key value. Inputs are never silently coerced.
var ErrInvalidArgument = errors.New("ranking: invalid argument")

// SelectTopK returns the k records with the largest key values in strictly
// descending key order. Ties go to the earliest original index (leftmost
// maximum). If k exceeds len(records) the whole input is returned, sorted.
//
// The scan is repeated linear extraction: O(N*k) time, O(N) extra space.
// The input slice is never mutated.
func SelectTopK[T any](records []T, k int, key func(T) float64) ([]T, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be >= 0, got %d", ErrInvalidArgument, k)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key function", ErrInvalidArgument)
	}
	keys, err := extractKeys(records, key)
	if err != nil {
		return nil, err
	}

	remaining := append([]T(nil), records...)
	if k > len(remaining) {
		k = len(remaining)
	}
	result := make([]T, 0, k)
	for len(result) < k {
		maxIdx := 0
		for i := 1; i < len(remaining); i++ {
			if keys[i] > keys[maxIdx] {
				maxIdx = i
			}
		}
		result = append(result, remaining[maxIdx])
		remaining = append(remaining[:maxIdx], remaining[maxIdx+1:]...)
		keys = append(keys[:maxIdx], keys[maxIdx+1:]...)
	}
	return result, nil
}

func extractKeys[T any](records []T, key func(T) float64) ([]float64, error) {
	keys := make([]float64, len(records))
	for i, r := range records {
		v := key(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite key at index %d", ErrInvalidArgument, i)
		}
		keys[i] = v
	}
	return keys, nil
}
