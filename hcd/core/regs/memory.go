package regs

import "sync"

// LoadHook computes the value a load observes. stored is the backing value.
type LoadHook func(off, stored uint32) uint32

// StoreHook computes the value kept after a store of v over old.
type StoreHook func(off, old, v uint32) uint32

// Memory is a software register bank. Registers without hooks behave as
// plain storage.
type Memory struct {
	mu     sync.Mutex
	words  map[uint32]uint32
	loads  map[uint32]LoadHook
	stores map[uint32]StoreHook
}

var _ Bank = (*Memory)(nil)

// NewMemory returns an empty bank.
func NewMemory() *Memory {
	return &Memory{
		words:  make(map[uint32]uint32),
		loads:  make(map[uint32]LoadHook),
		stores: make(map[uint32]StoreHook),
	}
}

// OnLoad installs fn for loads of off.
func (m *Memory) OnLoad(off uint32, fn LoadHook) {
	m.mu.Lock()
	m.loads[off] = fn
	m.mu.Unlock()
}

// OnStore installs fn for stores to off.
func (m *Memory) OnStore(off uint32, fn StoreHook) {
	m.mu.Lock()
	m.stores[off] = fn
	m.mu.Unlock()
}

// W1C makes mask in the register at off write-one-to-clear. Bits outside
// mask are stored normally.
func (m *Memory) W1C(off, mask uint32) {
	m.OnStore(off, func(_, old, v uint32) uint32 {
		return (old & mask &^ v) | (v &^ mask)
	})
}

// Load returns the register at off.
func (m *Memory) Load(off uint32) uint32 {
	m.mu.Lock()
	v := m.words[off]
	fn := m.loads[off]
	m.mu.Unlock()
	if fn != nil {
		return fn(off, v)
	}
	return v
}

// Store writes v to off through any store hook.
func (m *Memory) Store(off, v uint32) {
	m.mu.Lock()
	fn := m.stores[off]
	old := m.words[off]
	m.mu.Unlock()
	if fn != nil {
		v = fn(off, old, v)
	}
	m.mu.Lock()
	m.words[off] = v
	m.mu.Unlock()
}

// Poke sets the backing value of off without running hooks, the way
// hardware updates status bits.
func (m *Memory) Poke(off, v uint32) {
	m.mu.Lock()
	m.words[off] = v
	m.mu.Unlock()
}

// Raise ORs mask into the backing value of off without running hooks.
func (m *Memory) Raise(off, mask uint32) {
	m.mu.Lock()
	m.words[off] |= mask
	m.mu.Unlock()
}

// Peek returns the backing value of off without running hooks.
func (m *Memory) Peek(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[off]
}
