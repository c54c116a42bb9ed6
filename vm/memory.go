package vm

// Memory is the VM's flat data store. Cells are zero-initialized and
// addressed absolutely; stores extend it on demand.
type Memory struct {
	cells []float64
}

// Len returns the number of cells.
func (m *Memory) Len() int {
	return len(m.cells)
}

// Grow appends n zero cells.
func (m *Memory) Grow(n int) {
	for ; n > 0; n-- {
		m.cells = append(m.cells, 0)
	}
}

// Ensure extends memory with zero cells so that addr is valid.
func (m *Memory) Ensure(addr int) {
	if addr >= len(m.cells) {
		m.Grow(addr + 1 - len(m.cells))
	}
}

// Load reads a cell. ok is false when addr is outside memory.
func (m *Memory) Load(addr int) (v float64, ok bool) {
	if addr < 0 || addr >= len(m.cells) {
		return 0, false
	}
	return m.cells[addr], true
}

// Store writes a cell, growing memory as needed. Negative addresses are
// rejected.
func (m *Memory) Store(addr int, v float64) bool {
	if addr < 0 {
		return false
	}
	m.Ensure(addr)
	m.cells[addr] = v
	return true
}

// Truncate shrinks memory to n cells.
func (m *Memory) Truncate(n int) {
	if n < len(m.cells) {
		clear(m.cells[n:])
		m.cells = m.cells[:n]
	}
}

// Snapshot returns a copy of the cells.
func (m *Memory) Snapshot() []float64 {
	out := make([]float64, len(m.cells))
	copy(out, m.cells)
	return out
}
