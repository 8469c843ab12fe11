package ranking

import "fmt"

// DefaultBucketCount is the bucket count used by callers that do not choose
// their own.
const DefaultBucketCount = 10

// rangeEpsilon widens the key range so the maximum key does not land on the
// top edge of the last interval. The constant is fixed regardless of the
// value range; bucket assignment depends on it, so it must not change.
const rangeEpsilon = 0.001

// BucketSort sorts records ascending by the numeric key, distributing them
// into equal-width buckets and insertion-sorting each bucket. Equal keys keep
// their relative input order: the bucket index is a deterministic function of
// the key, and insertion sort is stable.
//
// Expected O(N + bucketCount) when keys are roughly uniform; degrades to
// O(N^2) when the keys collapse into one bucket, which is accepted.
// The input slice is never mutated.
func BucketSort[T any](records []T, key func(T) float64, bucketCount int) ([]T, error) {
	if bucketCount < 1 {
		return nil, fmt.Errorf("%w: bucket count must be >= 1, got %d", ErrInvalidArgument, bucketCount)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key function", ErrInvalidArgument)
	}
	if len(records) == 0 {
		return []T{}, nil
	}
	keys, err := extractKeys(records, key)
	if err != nil {
		return nil, err
	}

	minKey, maxKey := keys[0], keys[0]
	for _, v := range keys[1:] {
		if v < minKey {
			minKey = v
		}
		if v > maxKey {
			maxKey = v
		}
	}
	width := (maxKey - minKey + rangeEpsilon) / float64(bucketCount)

	type entry struct {
		rec T
		key float64
	}
	buckets := make([][]entry, bucketCount)
	for i, r := range records {
		idx := int((keys[i] - minKey) / width)
		if idx >= bucketCount { // guard float overshoot
			idx = bucketCount - 1
		}
		buckets[idx] = append(buckets[idx], entry{rec: r, key: keys[i]})
	}

	result := make([]T, 0, len(records))
	for _, b := range buckets {
		insertionSort(b, func(e entry) float64 { return e.key })
		for _, e := range b {
			result = append(result, e.rec)
		}
	}
	return result, nil
}

// insertionSort orders the slice ascending by key. Stable: equal keys never
// move past each other.
func insertionSort[T any](items []T, key func(T) float64) {
	for i := 1; i < len(items); i++ {
		cur := items[i]
		j := i - 1
		for j >= 0 && key(items[j]) > key(cur) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = cur
	}
}
