package ranking

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trip struct {
	id   int
	fare float64
}

func fare(t trip) float64 { return t.fare }

func TestSelectTopKBasic(t *testing.T) {
	trips := []trip{{1, 10}, {2, 50}, {3, 30}}
	got, err := SelectTopK(trips, 2, fare)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 50.0, got[0].fare)
	assert.Equal(t, 30.0, got[1].fare)
}

func TestSelectTopKLargerThanInput(t *testing.T) {
	trips := []trip{{1, 10}, {2, 50}, {3, 30}}
	got, err := SelectTopK(trips, 10, fare)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []trip{{2, 50}, {3, 30}, {1, 10}}, got)
}

func TestSelectTopKLeftmostMaximumTieBreak(t *testing.T) {
	trips := []trip{{1, 20}, {2, 20}, {3, 20}}
	got, err := SelectTopK(trips, 3, fare)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].id, got[1].id, got[2].id})
}

func TestSelectTopKDoesNotMutateInput(t *testing.T) {
	trips := []trip{{1, 10}, {2, 50}, {3, 30}}
	orig := append([]trip(nil), trips...)
	_, err := SelectTopK(trips, 2, fare)
	require.NoError(t, err)
	assert.Equal(t, orig, trips)
}

func TestSelectTopKEdgeCases(t *testing.T) {
	got, err := SelectTopK([]trip{}, 5, fare)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = SelectTopK([]trip{{1, 10}}, 0, fare)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = SelectTopK([]trip{{1, 10}}, -1, fare)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = SelectTopK([]trip{{1, math.NaN()}}, 1, fare)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSelectTopKDescendingProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	trips := make([]trip, 200)
	for i := range trips {
		trips[i] = trip{id: i, fare: float64(rng.Intn(50))}
	}
	got, err := SelectTopK(trips, 25, fare)
	require.NoError(t, err)
	require.Len(t, got, 25)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].fare, got[i].fare)
	}
}

func TestBucketSortOrdersAscending(t *testing.T) {
	trips := []trip{{1, 42.5}, {2, 3.1}, {3, 17}, {4, 0.5}, {5, 99}, {6, 17}}
	got, err := BucketSort(trips, fare, DefaultBucketCount)
	require.NoError(t, err)
	require.Len(t, got, len(trips))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].fare, got[i].fare)
	}
}

func TestBucketSortIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	trips := make([]trip, 500)
	for i := range trips {
		trips[i] = trip{id: i, fare: rng.Float64() * 100}
	}
	got, err := BucketSort(trips, fare, DefaultBucketCount)
	require.NoError(t, err)
	require.Len(t, got, len(trips))

	want := append([]trip(nil), trips...)
	sort.SliceStable(want, func(i, j int) bool { return want[i].fare < want[j].fare })
	assert.Equal(t, want, got)
}

func TestBucketSortAllEqualKeysKeepsInputOrder(t *testing.T) {
	trips := []trip{{1, 5}, {2, 5}, {3, 5}}
	got, err := BucketSort(trips, fare, DefaultBucketCount)
	require.NoError(t, err)
	assert.Equal(t, trips, got)
}

func TestBucketSortStableForEqualKeys(t *testing.T) {
	trips := []trip{{1, 9}, {2, 3}, {3, 9}, {4, 3}, {5, 9}}
	got, err := BucketSort(trips, fare, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 1, 3, 5}, []int{got[0].id, got[1].id, got[2].id, got[3].id, got[4].id})
}

func TestBucketSortEmptyInput(t *testing.T) {
	got, err := BucketSort([]trip{}, fare, DefaultBucketCount)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBucketSortNarrowKeyRange(t *testing.T) {
	// Keys far closer together than the range epsilon still sort correctly.
	trips := []trip{{1, 1.0003}, {2, 1.0001}, {3, 1.0002}}
	got, err := BucketSort(trips, fare, DefaultBucketCount)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, []int{got[0].id, got[1].id, got[2].id})
}

func TestBucketSortInvalidArguments(t *testing.T) {
	_, err := BucketSort([]trip{{1, 1}}, fare, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = BucketSort([]trip{{1, math.Inf(1)}}, fare, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = BucketSort([]trip{{1, 1}}, nil, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBucketSortDoesNotMutateInput(t *testing.T) {
	trips := []trip{{1, 9}, {2, 3}, {3, 6}}
	orig := append([]trip(nil), trips...)
	_, err := BucketSort(trips, fare, 3)
	require.NoError(t, err)
	assert.Equal(t, orig, trips)
}
