package gadget

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"

	"github.com/ropforge/ropforge/internal/varnode"
)

func toGobSpaceInfo(s varnode.SpaceInfo) gobSpaceInfo {
	return gobSpaceInfo{
		Name: s.Name, Index: s.Index, Type: int(s.Type),
		WordSize: s.WordSize, BigEndian: s.BigEndian, AddressSize: s.AddressSize,
	}
}

func fromGobSpaceInfo(s gobSpaceInfo) varnode.SpaceInfo {
	return varnode.SpaceInfo{
		Name: s.Name, Index: s.Index, Type: varnode.SpaceType(s.Type),
		WordSize: s.WordSize, BigEndian: s.BigEndian, AddressSize: s.AddressSize,
	}
}

// gobLibrary is the on-disk shape of a Library: exported fields only, so
// encoding/gob can round-trip it without reflection tricks on unexported
// state. Spec marks gadget-library serialization out of scope for the
// synthesis engine itself; this format is an internal durability detail
// (SUPPLEMENTED FEATURES §5), not a wire contract with another
// implementation, so the standard library's gob codec is used rather
// than a message-pack binding.
type gobLibrary struct {
	Gadgets []Gadget
	Spaces  []gobSpaceInfo
	CodeIdx int
}

type gobSpaceInfo struct {
	Name        string
	Index       int
	Type        int
	WordSize    int
	BigEndian   bool
	AddressSize int
}

// LoadFromFile reads a previously-saved library, mirroring
// GadgetLibrary::load_from_file.
func LoadFromFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading gadget library")
	}
	defer f.Close()

	var g gobLibrary
	if err := gob.NewDecoder(f).Decode(&g); err != nil {
		return nil, errors.Wrap(err, "decoding gadget library")
	}
	lib := &Library{Gadgets: g.Gadgets, codeIdx: g.CodeIdx}
	for _, s := range g.Spaces {
		lib.spaces = append(lib.spaces, fromGobSpaceInfo(s))
	}
	return lib, nil
}

// WriteToFile persists the library, mirroring GadgetLibrary::write_to_file.
func (l *Library) WriteToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "writing gadget library")
	}
	defer f.Close()

	g := gobLibrary{Gadgets: l.Gadgets, CodeIdx: l.codeIdx}
	for _, s := range l.spaces {
		g.Spaces = append(g.Spaces, toGobSpaceInfo(s))
	}
	if err := gob.NewEncoder(f).Encode(g); err != nil {
		return errors.Wrap(err, "encoding gadget library")
	}
	return nil
}
