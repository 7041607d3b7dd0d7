package nativemem

import "sort"

// Within32 reports whether to can be reached from from with a signed
// 32-bit displacement.
func Within32(from, to uintptr) bool {
	d := int64(to) - int64(from)
	return d >= -(1<<31) && d <= 1<<31-1
}

func sortByDistance(addrs []uintptr, target uintptr) {
	dist := func(a uintptr) uint64 {
		if a > target {
			return uint64(a - target)
		}
		return uint64(target - a)
	}
	sort.Slice(addrs, func(i, j int) bool { return dist(addrs[i]) < dist(addrs[j]) })
}
