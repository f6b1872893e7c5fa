// Package neighbor builds the padded neighbor table consumed by pair kernels.
//
// The table is column-strided by its pitch so that consecutive threads read
// consecutive words:
//
//	nbor[ii]               atom index i of row ii
//	nbor[ii+pitch]         number of neighbors of i
//	nbor[ii+(2+k)*pitch]   k-th neighbor j, bond order in the top two bits
package neighbor

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/san-kum/crmlgpu/internal/device"
)

const (
	SBBits    = 30
	NeighMask = 1<<SBBits - 1

	maxCells = 1 << 24
)

var (
	ErrNotAllocated     = errors.New("neighbor: list not allocated")
	ErrTooManyNeighbors = errors.New("neighbor: neighbor count exceeds max_nbors")
	ErrBadCutoff        = errors.New("neighbor: cutoff must be positive")
)

// SBMask extracts the bond order of an encoded neighbor entry.
func SBMask(j int32) int {
	return int(uint32(j)>>SBBits) & 3
}

// Encode packs a neighbor index and bond order into one entry.
func Encode(j, order int) int32 {
	return int32(uint32(j) | uint32(order)<<SBBits)
}

// List is a full neighbor list: every owned atom lists all of its neighbors.
type List struct {
	DevNbor device.Buffer[int32]

	host      []int32
	ilist     []int32
	pitch     int
	maxNbors  int
	inum      int
	allocated bool
}

// Init allocates a table for up to maxInum rows of maxNbors neighbors.
func (l *List) Init(dev *device.Device, maxInum, maxNbors int) error {
	if l.allocated {
		return fmt.Errorf("neighbor: list already allocated")
	}
	if maxInum <= 0 || maxNbors <= 0 {
		return fmt.Errorf("%w: max_inum=%d max_nbors=%d", device.ErrInvalidSize, maxInum, maxNbors)
	}
	size := (maxNbors + 2) * maxInum
	if err := l.DevNbor.Alloc(size, dev, device.ReadOnly); err != nil {
		return fmt.Errorf("alloc nbor: %w", err)
	}
	l.host = make([]int32, size)
	l.ilist = make([]int32, maxInum)
	l.pitch = maxInum
	l.maxNbors = maxNbors
	l.allocated = true
	return nil
}

func (l *List) Clear() {
	if !l.allocated {
		return
	}
	l.allocated = false
	l.DevNbor.Clear()
	l.host, l.ilist = nil, nil
	l.inum = 0
}

func (l *List) Allocated() bool { return l.allocated }
func (l *List) Pitch() int      { return l.pitch }
func (l *List) MaxNbors() int   { return l.maxNbors }
func (l *List) Inum() int       { return l.inum }

// Ilist maps answer rows to atom indices.
func (l *List) Ilist() []int32 { return l.ilist[:l.inum] }

// Row returns the atom of row ii and its encoded neighbor entries from the
// host copy of the table.
func (l *List) Row(ii int) (int, []int32) {
	numj := int(l.host[ii+l.pitch])
	js := make([]int32, numj)
	for k := 0; k < numj; k++ {
		js[k] = l.host[ii+(2+k)*l.pitch]
	}
	return int(l.host[ii]), js
}

// Build bins pos into cells of at least cellSize and writes the neighbors
// closer than cutoff of the first inum atoms. All len(pos) atoms are
// neighbor candidates, so atoms past inum act as ghosts.
func (l *List) Build(pos [][3]float64, inum int, cutoff, cellSize float64, specials Specials) error {
	if !l.allocated {
		return ErrNotAllocated
	}
	if cutoff <= 0 {
		return ErrBadCutoff
	}
	if inum > l.pitch || inum > len(pos) {
		return fmt.Errorf("%w: inum=%d pitch=%d nall=%d", device.ErrInvalidSize, inum, l.pitch, len(pos))
	}
	if cellSize < cutoff {
		cellSize = cutoff
	}

	if inum == 0 {
		l.inum = 0
		return nil
	}

	g, err := newCellGrid(pos, cellSize)
	if err != nil {
		return err
	}

	cutsq := cutoff * cutoff
	for ii := 0; ii < inum; ii++ {
		i := ii
		orders := specials.orderMap(i)
		xi := pos[i]
		numj := 0
		var overflow error

		g.visit(xi, func(j int) {
			if j == i || overflow != nil {
				return
			}
			dx := xi[0] - pos[j][0]
			dy := xi[1] - pos[j][1]
			dz := xi[2] - pos[j][2]
			if dx*dx+dy*dy+dz*dz >= cutsq {
				return
			}
			if numj == l.maxNbors {
				overflow = fmt.Errorf("%w: atom %d has more than %d", ErrTooManyNeighbors, i, l.maxNbors)
				return
			}
			l.host[ii+(2+numj)*l.pitch] = Encode(j, orders[j])
			numj++
		})
		if overflow != nil {
			return overflow
		}

		l.host[ii] = int32(i)
		l.host[ii+l.pitch] = int32(numj)
		l.ilist[ii] = int32(i)
	}

	if err := l.DevNbor.CopyFrom(l.host); err != nil {
		return err
	}
	l.inum = inum
	return nil
}

// BytesPerAtom is the device footprint of one table row.
func (l *List) BytesPerAtom(maxNbors int) int {
	return (maxNbors + 2) * int(device.SizeOf[int32]())
}

func (l *List) HostMemoryUsage() float64 {
	return float64(4*(cap(l.host)+cap(l.ilist))) + float64(unsafe.Sizeof(*l))
}

type cellGrid struct {
	lo         [3]float64
	size       float64
	nx, ny, nz int
	head       []int
	next       []int
}

func newCellGrid(pos [][3]float64, size float64) (*cellGrid, error) {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, p := range pos {
		for d := 0; d < 3; d++ {
			lo[d] = math.Min(lo[d], p[d])
			hi[d] = math.Max(hi[d], p[d])
		}
	}

	dims := [3]int{}
	for d := 0; d < 3; d++ {
		dims[d] = int((hi[d]-lo[d])/size) + 1
	}
	total := dims[0] * dims[1] * dims[2]
	if total <= 0 || total > maxCells {
		return nil, fmt.Errorf("neighbor: %d cells of size %.3f", total, size)
	}

	g := &cellGrid{lo: lo, size: size, nx: dims[0], ny: dims[1], nz: dims[2]}
	g.head = make([]int, total)
	for c := range g.head {
		g.head[c] = -1
	}
	g.next = make([]int, len(pos))
	for i := len(pos) - 1; i >= 0; i-- {
		c := g.cellOf(pos[i])
		g.next[i] = g.head[c]
		g.head[c] = i
	}
	return g, nil
}

func (g *cellGrid) coords(p [3]float64) (int, int, int) {
	cx := int((p[0] - g.lo[0]) / g.size)
	cy := int((p[1] - g.lo[1]) / g.size)
	cz := int((p[2] - g.lo[2]) / g.size)
	return min(cx, g.nx-1), min(cy, g.ny-1), min(cz, g.nz-1)
}

func (g *cellGrid) cellOf(p [3]float64) int {
	cx, cy, cz := g.coords(p)
	return (cz*g.ny+cy)*g.nx + cx
}

// visit calls fn for every atom in the 27 cells around p.
func (g *cellGrid) visit(p [3]float64, fn func(j int)) {
	cx, cy, cz := g.coords(p)
	for z := max(cz-1, 0); z <= min(cz+1, g.nz-1); z++ {
		for y := max(cy-1, 0); y <= min(cy+1, g.ny-1); y++ {
			for x := max(cx-1, 0); x <= min(cx+1, g.nx-1); x++ {
				for j := g.head[(z*g.ny+y)*g.nx+x]; j >= 0; j = g.next[j] {
					fn(j)
				}
			}
		}
	}
}
