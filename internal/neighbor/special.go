package neighbor

// Bond orders stored in the top bits of a neighbor entry.
const (
	OrderNone = iota
	Order12
	Order13
	Order14
)

// Special is one bonded partner of an atom and its bond distance.
type Special struct {
	Atom  int
	Order int
}

// Specials lists the bonded partners of every atom.
type Specials [][]Special

// FromBonds derives 1-2, 1-3 and 1-4 partners of n atoms from a bond list by
// breadth-first search over the bond graph. An atom reachable by more than one
// path keeps the shortest bond distance.
func FromBonds(n int, bonds [][2]int) Specials {
	adj := make([][]int, n)
	for _, b := range bonds {
		if b[0] < 0 || b[1] < 0 || b[0] >= n || b[1] >= n || b[0] == b[1] {
			continue
		}
		adj[b[0]] = append(adj[b[0]], b[1])
		adj[b[1]] = append(adj[b[1]], b[0])
	}

	specials := make(Specials, n)
	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}

	for i := 0; i < n; i++ {
		if len(adj[i]) == 0 {
			continue
		}
		visited := []int{i}
		depth[i] = 0
		frontier := []int{i}
		for order := Order12; order <= Order14 && len(frontier) > 0; order++ {
			var next []int
			for _, a := range frontier {
				for _, b := range adj[a] {
					if depth[b] >= 0 {
						continue
					}
					depth[b] = order
					visited = append(visited, b)
					next = append(next, b)
					specials[i] = append(specials[i], Special{Atom: b, Order: order})
				}
			}
			frontier = next
		}
		for _, v := range visited {
			depth[v] = -1
		}
	}
	return specials
}

// MaxSpecial is the largest number of partners of any atom.
func (s Specials) MaxSpecial() int {
	m := 0
	for _, row := range s {
		if len(row) > m {
			m = len(row)
		}
	}
	return m
}

func (s Specials) orderMap(i int) map[int]int {
	if i >= len(s) || len(s[i]) == 0 {
		return nil
	}
	m := make(map[int]int, len(s[i]))
	for _, sp := range s[i] {
		m[sp.Atom] = sp.Order
	}
	return m
}
