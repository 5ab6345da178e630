package slidewindow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjuster_Adjust(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name      string
		elapsed   []time.Duration
		wantSizes []int
	}{
		{
			name:      "window not full",
			elapsed:   []time.Duration{time.Second, time.Millisecond},
			wantSizes: []int{100, 100},
		}, {
			name:      "faster than average",
			elapsed:   []time.Duration{time.Second, time.Second, time.Second, 100 * time.Millisecond},
			wantSizes: []int{100, 100, 100, 110},
		}, {
			name:      "slower than average",
			elapsed:   []time.Duration{time.Second, time.Second, time.Second, 5 * time.Second},
			wantSizes: []int{100, 100, 100, 90},
		}, {
			name:      "same as average",
			elapsed:   []time.Duration{time.Second, time.Second, time.Second, time.Second},
			wantSizes: []int{100, 100, 100, 100},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a, err := NewAdjuster(3, 100, 10, 200, 10, 0)
			require.NoError(t, err)

			for i, elapsed := range tc.elapsed {
				size, err := a.Adjust(context.Background(), elapsed)
				require.NoError(t, err)
				assert.Equal(t, tc.wantSizes[i], size, "round %d", i)
			}
		})
	}
}

func TestAdjuster_Bounds(t *testing.T) {
	t.Parallel()

	a, err := NewAdjuster(1, 500, 10, 50, 30, 0)
	require.NoError(t, err)

	ctx := context.Background()
	size, _ := a.Adjust(ctx, time.Second)
	assert.Equal(t, 50, size)

	// 越来越慢，批次缩小但不会低于下限
	for i := 2; i < 10; i++ {
		size, _ = a.Adjust(ctx, time.Duration(i)*time.Second)
	}
	assert.Equal(t, 10, size)
}

func TestAdjuster_MinAdjustInterval(t *testing.T) {
	t.Parallel()

	a, err := NewAdjuster(1, 100, 10, 200, 10, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	ctx := context.Background()
	_, _ = a.Adjust(ctx, time.Second)
	size, _ := a.Adjust(ctx, time.Millisecond)
	assert.Equal(t, 110, size)

	// 间隔内不再调整
	size, _ = a.Adjust(ctx, time.Microsecond)
	assert.Equal(t, 110, size)

	now = now.Add(time.Minute)
	size, _ = a.Adjust(ctx, time.Nanosecond)
	assert.Equal(t, 120, size)
}
