//go:build linux

package process_linux

import (
	"enginehook/process"
)

// ReadPointerChain walks the chain through process_vm_readv.
// See process.FollowPointerChain for the offset convention.
func (p *LinuxProcess) ReadPointerChain(
	base process.ProcessMemoryAddress,
	size process.ProcessMemorySize,
	offsets ...process.ProcessMemorySize,
) ([]byte, error) {
	return process.FollowPointerChain(p, base, size, offsets...)
}
