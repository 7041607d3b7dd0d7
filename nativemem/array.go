package nativemem

// Array is a borrowed, fixed-capacity array of pointers living in host
// memory. Indexes are 0-based; a slot may hold a null pointer.
type Array struct {
	base     uintptr
	capacity int
}

// NewArray describes capacity pointer slots starting at base.
func NewArray(base uintptr, capacity int) Array {
	return Array{base: base, capacity: capacity}
}

func (a Array) Base() uintptr { return a.base }
func (a Array) Cap() int      { return a.capacity }

// SlotAddr returns the address of slot i.
func (a Array) SlotAddr(i int) (uintptr, bool) {
	if a.base == 0 || i < 0 || i >= a.capacity {
		return 0, false
	}
	return a.base + uintptr(i)*PtrSize, true
}

// At returns the pointer held by slot i. Null slots report false.
func (a Array) At(i int) (uintptr, bool) {
	addr, ok := a.SlotAddr(i)
	if !ok {
		return 0, false
	}
	p := ReadPtr(addr)
	return p, p != 0
}

// Each calls fn for every non-null slot until fn returns false.
func (a Array) Each(fn func(i int, p uintptr) bool) {
	for i := 0; i < a.capacity; i++ {
		if p, ok := a.At(i); ok {
			if !fn(i, p) {
				return
			}
		}
	}
}

// ClientArray is the host's per-connection pointer array. Client indexes
// are 1-based to match the host's player indexes.
type ClientArray struct {
	arr Array
}

// NewClientArray describes maxClients slots starting at base.
func NewClientArray(base uintptr, maxClients int) ClientArray {
	return ClientArray{arr: NewArray(base, maxClients)}
}

func (c ClientArray) Base() uintptr { return c.arr.base }
func (c ClientArray) Cap() int      { return c.arr.capacity }

// At returns the client object for the 1-based index. Index 0, indexes past
// the capacity and empty slots report false. The pointer is only valid for
// the current host call; a disconnect may free it.
func (c ClientArray) At(index int) (uintptr, bool) {
	return c.arr.At(index - 1)
}

// Each calls fn with 1-based indexes of connected clients.
func (c ClientArray) Each(fn func(index int, client uintptr) bool) {
	c.arr.Each(func(i int, p uintptr) bool {
		return fn(i+1, p)
	})
}
