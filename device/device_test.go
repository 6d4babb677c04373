package device

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/heatsim/grid"
)

func testPair(t *testing.T) *grid.Pair {
	p, err := grid.NewPair(2, 2)
	require.NoError(t, err)
	require.NoError(t, p.Load([]float64{1, 2, 3, 4}, nil))
	return p
}

// doubleKernel writes twice the previous values into the
// current slab.
func doubleKernel(p *grid.Pair) (float64, error) {
	prev, cur := p.Previous(), p.Current()
	for i := 1; i <= p.OwnedRows(); i++ {
		for j, x := range prev.Owned(i) {
			cur.Owned(i)[j] = 2 * x
		}
	}
	return 1, nil
}

func TestHostRunsInline(t *testing.T) {
	p := testPair(t)
	d := &Host{}
	require.NoError(t, d.Attach(p))
	d.Launch(0, doubleKernel)
	d.Launch(1, func(p *grid.Pair) (float64, error) { return 5, nil })
	assert.Equal(t, []float64{2, 4, 6, 8}, p.Current().OwnedBlock())

	res, err := d.Join()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5}, res)
}

func TestHostNotAttached(t *testing.T) {
	d := &Host{}
	assert.ErrorIs(t, d.Upload(), ErrNotAttached)
	d.Launch(0, doubleKernel)
	_, err := d.Join()
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestEmulatedCoherence(t *testing.T) {
	p := testPair(t)
	d := &Emulated{Threads: 2}
	require.NoError(t, d.Attach(p))
	require.NoError(t, d.Upload(AllRows(p, Previous), AllRows(p, Current)))

	d.Launch(0, doubleKernel)
	_, err := d.Join()
	require.NoError(t, err)

	// Results stay on the device until they are downloaded.
	assert.Equal(t, []float64{1, 2, 3, 4}, p.Current().OwnedBlock())

	require.NoError(t, d.Download(Rows{Buffer: Current, First: 2, Count: 1}))
	assert.Equal(t, []float64{1, 2, 6, 8}, p.Current().OwnedBlock())

	// The device swaps along with the host.
	p.Swap()
	require.NoError(t, d.Download(AllRows(p, Previous)))
	assert.Equal(t, []float64{2, 4, 6, 8}, p.Previous().OwnedBlock())

	assert.Error(t, d.Download(Rows{Buffer: Current, First: 3, Count: 2}))
}

func TestEmulatedStreams(t *testing.T) {
	p := testPair(t)
	d := &Emulated{}
	require.NoError(t, d.Attach(p))

	var counter int64
	for stream := 0; stream < 3; stream++ {
		for i := 0; i < 10; i++ {
			expected := int64(i)
			d.Launch(stream, func(p *grid.Pair) (float64, error) {
				atomic.AddInt64(&counter, 1)
				return float64(expected), nil
			})
		}
	}
	res, err := d.Join()
	require.NoError(t, err)
	assert.Len(t, res, 30)
	for i, x := range res {
		assert.Equal(t, float64(i%10), x)
	}
	assert.EqualValues(t, 30, atomic.LoadInt64(&counter))

	res, err = d.Join()
	assert.NoError(t, err)
	assert.Empty(t, res)
}

func TestEmulatedStreamOrder(t *testing.T) {
	p := testPair(t)
	d := &Emulated{Threads: 4}
	require.NoError(t, d.Attach(p))

	var last int64 = -1
	for i := 0; i < 50; i++ {
		idx := int64(i)
		d.Launch(0, func(p *grid.Pair) (float64, error) {
			if !atomic.CompareAndSwapInt64(&last, idx-1, idx) {
				return 0, errors.New("kernel ran out of order")
			}
			return 0, nil
		})
	}
	_, err := d.Join()
	assert.NoError(t, err)
}

func TestEmulatedError(t *testing.T) {
	p := testPair(t)
	d := New(true, 1)
	require.NoError(t, d.Attach(p))
	d.Launch(0, func(p *grid.Pair) (float64, error) { return 0, errors.New("kernel failed") })
	_, err := d.Join()
	assert.EqualError(t, err, "kernel failed")
}
