// Package elflift implements the one standard-library-only adapter in
// the tree: reading executable segments, symbols, and static data out of
// an ELF object via debug/elf, per spec §4.1 ("for each executable
// segment of the input image"). Instruction decode itself is delegated
// to internal/arch/toyarch.Bind over each segment's bytes — elflift owns
// image loading, not a second disassembler.
package elflift

import (
	"debug/elf"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/arch/toyarch"
	"github.com/ropforge/ropforge/internal/varnode"
)

// Image loads an ELF file's executable segments and symbol table into
// memory and satisfies arch.Image and arch.Lifter by dispatching decode
// to a toyarch.BoundArch per segment.
type Image struct {
	segments []arch.Segment
	symbols  map[string]uint64
	lifters  []*toyarch.BoundArch
	*toyarch.Arch
}

// Load reads an ELF file from path and returns its executable segments,
// symbol table, and a Lifter that decodes bytes from those segments.
func Load(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening ELF image %q", path)
	}
	defer f.Close()

	img := &Image{
		symbols: make(map[string]uint64),
		Arch:    toyarch.New(),
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return nil, errors.Wrapf(err, "reading PT_LOAD segment at 0x%x", prog.Vaddr)
		}
		executable := prog.Flags&elf.PF_X != 0
		seg := arch.Segment{Base: prog.Vaddr, Data: data, Executable: executable}
		img.segments = append(img.segments, seg)
		if executable {
			img.lifters = append(img.lifters, toyarch.Bind(prog.Vaddr, data))
		}
	}

	syms, err := f.Symbols()
	if err != nil && !isNoSymbolsErr(err) {
		return nil, errors.Wrap(err, "reading ELF symbol table")
	}
	for _, s := range syms {
		if s.Name != "" {
			img.symbols[s.Name] = s.Value
		}
	}
	dynsyms, err := f.DynamicSymbols()
	if err == nil {
		for _, s := range dynsyms {
			if s.Name != "" {
				if _, ok := img.symbols[s.Name]; !ok {
					img.symbols[s.Name] = s.Value
				}
			}
		}
	}

	return img, nil
}

func isNoSymbolsErr(err error) bool {
	return err != nil && err.Error() == "no symbol section"
}

func (img *Image) Segments() []arch.Segment { return img.segments }

func (img *Image) SymbolAddress(name string) (uint64, bool) {
	v, ok := img.symbols[name]
	return v, ok
}

// ReadBytes reads the byte range named by vn out of whichever loaded
// segment covers it. vn.Space is ignored; segments are matched purely by
// address range, mirroring a flat physical address space.
func (img *Image) ReadBytes(vn varnode.VarNode) ([]byte, bool) {
	for _, seg := range img.segments {
		end := seg.Base + uint64(len(seg.Data))
		if vn.Offset >= seg.Base && vn.End() <= end {
			start := vn.Offset - seg.Base
			return seg.Data[start : start+uint64(vn.Size)], true
		}
	}
	return nil, false
}

func (img *Image) segmentFor(addr uint64) (*toyarch.BoundArch, bool) {
	for _, l := range img.lifters {
		end := l.Base + uint64(len(l.Data))
		if addr >= l.Base && addr < end {
			return l, true
		}
	}
	return nil, false
}

// ReadUntilBranch implements arch.Lifter by dispatching to whichever
// executable segment contains addr.
func (img *Image) ReadUntilBranch(addr uint64, max int) []arch.Instruction {
	l, ok := img.segmentFor(addr)
	if !ok {
		return nil
	}
	return l.ReadUntilBranch(addr, max)
}

// ReadN implements arch.Lifter by dispatching to whichever executable
// segment contains addr.
func (img *Image) ReadN(addr uint64, n int) []arch.Instruction {
	l, ok := img.segmentFor(addr)
	if !ok {
		return nil
	}
	return l.ReadN(addr, n)
}

func (img *Image) String() string {
	return fmt.Sprintf("elflift.Image{segments=%d, symbols=%d}", len(img.segments), len(img.symbols))
}
