package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ModuleInfo describes one module image mapped into a process
type ModuleInfo struct {
	Name string               // file name of the image, e.g. "engine.dll"
	Path string               // full path as reported by the OS
	Base ProcessMemoryAddress // lowest mapped address of the image
	Size ProcessMemorySize    // span from Base to the end of the last mapping
}
