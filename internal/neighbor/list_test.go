package neighbor

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/san-kum/crmlgpu/internal/device"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newDevice(t *testing.T) *device.Device {
	t.Helper()
	props := device.DefaultProperties()
	props.TotalMem = 1 << 22
	props.Workers = 2
	dev, err := device.New(props)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestEncode(t *testing.T) {
	for order := OrderNone; order <= Order14; order++ {
		e := Encode(12345, order)
		assert.Equal(t, order, SBMask(e))
		assert.Equal(t, int32(12345), e&NeighMask)
	}
}

func randomPositions(n int, box float64, seed int64) [][3]float64 {
	rng := rand.New(rand.NewSource(seed))
	pos := make([][3]float64, n)
	for i := range pos {
		pos[i] = [3]float64{rng.Float64() * box, rng.Float64() * box, rng.Float64() * box}
	}
	return pos
}

func bruteForce(pos [][3]float64, i int, cutoff float64) []int {
	var js []int
	for j := range pos {
		if j == i {
			continue
		}
		dx := pos[i][0] - pos[j][0]
		dy := pos[i][1] - pos[j][1]
		dz := pos[i][2] - pos[j][2]
		if dx*dx+dy*dy+dz*dz < cutoff*cutoff {
			js = append(js, j)
		}
	}
	return js
}

func TestBuildMatchesBruteForce(t *testing.T) {
	dev := newDevice(t)
	pos := randomPositions(200, 20, 3)
	const cutoff = 4.0

	var l List
	require.NoError(t, l.Init(dev, 150, 200))
	require.NoError(t, l.Build(pos, 150, cutoff, 0, nil))

	assert.Equal(t, 150, l.Inum())
	assert.Len(t, l.Ilist(), 150)
	host := l.DevNbor.Data()
	for ii := 0; ii < l.Inum(); ii++ {
		i, entries := l.Row(ii)
		assert.Equal(t, ii, i)
		assert.Equal(t, int32(i), host[ii])

		got := make([]int, len(entries))
		for k, e := range entries {
			assert.Equal(t, OrderNone, SBMask(e))
			got[k] = int(e & NeighMask)
			assert.Equal(t, e, host[ii+(2+k)*l.Pitch()])
		}
		sort.Ints(got)
		assert.Equal(t, bruteForce(pos, i, cutoff), got, "row %d", ii)
	}
}

func TestBuildEncodesSpecials(t *testing.T) {
	dev := newDevice(t)
	pos := [][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}}
	specials := FromBonds(len(pos), [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}})

	var l List
	require.NoError(t, l.Init(dev, 5, 8))
	require.NoError(t, l.Build(pos, 5, 10, 0, specials))

	_, entries := l.Row(0)
	orders := map[int]int{}
	for _, e := range entries {
		orders[int(e&NeighMask)] = SBMask(e)
	}
	assert.Equal(t, map[int]int{1: Order12, 2: Order13, 3: Order14, 4: OrderNone}, orders)
}

func TestBuildErrors(t *testing.T) {
	dev := newDevice(t)
	pos := [][3]float64{{0, 0, 0}, {0.5, 0, 0}, {1, 0, 0}}

	var empty List
	assert.ErrorIs(t, empty.Build(pos, 3, 1, 0, nil), ErrNotAllocated)

	var l List
	require.NoError(t, l.Init(dev, 3, 1))
	assert.ErrorIs(t, l.Build(pos, 3, 0, 0, nil), ErrBadCutoff)
	assert.ErrorIs(t, l.Build(pos, 4, 2, 0, nil), device.ErrInvalidSize)
	assert.ErrorIs(t, l.Build(pos, 3, 2, 0, nil), ErrTooManyNeighbors)

	require.NoError(t, l.Build(pos, 0, 2, 0, nil))
	assert.Zero(t, l.Inum())
}

func TestFailedBuildKeepsPreviousTable(t *testing.T) {
	dev := newDevice(t)
	pos := [][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}

	var l List
	require.NoError(t, l.Init(dev, 3, 1))
	require.NoError(t, l.Build(pos, 1, 1.5, 0, nil))
	require.Equal(t, 1, l.Inum())

	assert.ErrorIs(t, l.Build(pos, 3, 2.5, 0, nil), ErrTooManyNeighbors)
	assert.Equal(t, 1, l.Inum())
}

func TestGhostsAreCandidatesOnly(t *testing.T) {
	dev := newDevice(t)
	pos := [][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}

	var l List
	require.NoError(t, l.Init(dev, 3, 4))
	require.NoError(t, l.Build(pos, 1, 1.5, 0, nil))

	assert.Equal(t, 1, l.Inum())
	_, entries := l.Row(0)
	require.Len(t, entries, 1)
	assert.Equal(t, int32(1), entries[0])
}

func TestInitAndClear(t *testing.T) {
	dev := newDevice(t)
	var l List

	assert.ErrorIs(t, l.Init(dev, 0, 4), device.ErrInvalidSize)
	require.NoError(t, l.Init(dev, 10, 6))
	assert.Equal(t, int64((6+2)*10*4), dev.Used())
	assert.Equal(t, 10, l.Pitch())
	assert.Equal(t, 6, l.MaxNbors())
	assert.Equal(t, 32, l.BytesPerAtom(6))
	assert.Error(t, l.Init(dev, 10, 6))

	l.Clear()
	l.Clear()
	assert.False(t, l.Allocated())
	assert.Zero(t, dev.Used())
}

func TestFromBonds(t *testing.T) {
	// 0-1-2-3-4 chain with a 1-5 branch.
	specials := FromBonds(6, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {1, 5}, {2, 2}, {7, 1}})

	assert.ElementsMatch(t, []Special{{1, Order12}, {2, Order13}, {5, Order13}, {3, Order14}}, specials[0])
	assert.ElementsMatch(t, []Special{{3, Order12}, {1, Order12}, {4, Order13}, {0, Order13}, {5, Order13}}, specials[2])
	assert.Equal(t, 5, specials.MaxSpecial())
	assert.Nil(t, specials.orderMap(10))
}

func TestFromBondsRing(t *testing.T) {
	// Atom 2 is reachable along both sides of the ring.
	specials := FromBonds(4, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}})
	assert.ElementsMatch(t, []Special{{1, Order12}, {3, Order12}, {2, Order13}}, specials[0])
}
