package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Binject/debug/elf"
	"github.com/Binject/debug/pe"
)

// IMAGE_SCN_MEM_EXECUTE
const scnMemExecute = 0x20000000

var (
	errNotExecutable = errors.New("offset is not in an executable section")
	errUnknownFormat = errors.New("unknown image format")
)

type section struct {
	name       string
	start, end uint64
	exec       bool
}

// image is the part of a module file the verifier needs. Section bounds
// are relative to the image base, the same way offsets are.
type image struct {
	format   string
	sections []section
	exports  map[string]bool
}

func openImage(path string) (*image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	switch {
	case bytes.HasPrefix(magic, []byte("MZ")):
		return openPE(path)
	case bytes.Equal(magic, []byte("\x7fELF")):
		return openELF(path)
	}
	return nil, fmt.Errorf("%w: %s", errUnknownFormat, path)
}

func openPE(path string) (*image, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pe: %w", err)
	}
	defer f.Close()

	im := &image{format: "pe", exports: make(map[string]bool)}
	for _, s := range f.Sections {
		size := uint64(s.VirtualSize)
		if uint64(s.Size) > size {
			size = uint64(s.Size)
		}
		im.sections = append(im.sections, section{
			name:  s.Name,
			start: uint64(s.VirtualAddress),
			end:   uint64(s.VirtualAddress) + size,
			exec:  s.Characteristics&scnMemExecute != 0,
		})
	}

	exports, err := f.Exports()
	if err != nil {
		return nil, fmt.Errorf("read exports: %w", err)
	}
	for _, e := range exports {
		if e.Name != "" {
			im.exports[e.Name] = true
		}
	}
	return im, nil
}

func openELF(path string) (*image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	defer f.Close()

	var base uint64
	first := true
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if first || p.Vaddr < base {
			base = p.Vaddr
			first = false
		}
	}
	base &^= 0xfff

	im := &image{format: "elf", exports: make(map[string]bool)}
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		im.sections = append(im.sections, section{
			name:  s.Name,
			start: s.Addr - base,
			end:   s.Addr - base + s.Size,
			exec:  s.Flags&elf.SHF_EXECINSTR != 0,
		})
	}

	// static executables have no dynamic symbols
	syms, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("read dynamic symbols: %w", err)
	}
	for _, s := range syms {
		if s.Section != elf.SHN_UNDEF && elf.ST_TYPE(s.Info) == elf.STT_FUNC {
			im.exports[s.Name] = true
		}
	}
	return im, nil
}

// sectionAt returns the section containing offset.
func (im *image) sectionAt(offset uint64) (section, bool) {
	for _, s := range im.sections {
		if offset >= s.start && offset < s.end {
			return s, true
		}
	}
	return section{}, false
}

// checkCode verifies offset points into executable code.
func (im *image) checkCode(offset uint64) (section, error) {
	s, ok := im.sectionAt(offset)
	if !ok {
		return section{}, fmt.Errorf("%#x: outside every section", offset)
	}
	if !s.exec {
		return s, fmt.Errorf("%#x in %s: %w", offset, s.name, errNotExecutable)
	}
	return s, nil
}

// checkData verifies offset points into the mapped image.
func (im *image) checkData(offset uint64) (section, error) {
	s, ok := im.sectionAt(offset)
	if !ok {
		return section{}, fmt.Errorf("%#x: outside every section", offset)
	}
	return s, nil
}
