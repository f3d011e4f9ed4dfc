package nasbench

type refKind int

const (
	refUnset refKind = iota
	refIndex
	refString
	refCanonical
)

// Canonicaler is implemented by values that can render their canonical
// architecture encoding, such as topology.Topology.
type Canonicaler interface {
	CanonicalString() string
}

// ArchRef refers to an architecture by index, by encoding or by a value that
// renders its encoding. Build one with IndexRef, StringRef or CanonicalRef.
type ArchRef struct {
	kind  refKind
	index int
	str   string
	canon Canonicaler
}

// IndexRef refers to an architecture by position.
func IndexRef(index int) ArchRef { return ArchRef{kind: refIndex, index: index} }

// StringRef refers to an architecture by its encoding.
func StringRef(arch string) ArchRef { return ArchRef{kind: refString, str: arch} }

// CanonicalRef refers to an architecture through its canonical encoding.
func CanonicalRef(c Canonicaler) ArchRef { return ArchRef{kind: refCanonical, canon: c} }

// ResolveIndex maps ref to an index of the search space. It returns -1 when
// ref does not name a known architecture; it never fails.
func (s *Store) ResolveIndex(ref ArchRef) int {
	switch ref.kind {
	case refIndex:
		if ref.index >= 0 && ref.index < len(s.metaArchs) {
			return ref.index
		}
	case refString:
		if idx, ok := s.archIndex[ref.str]; ok {
			return idx
		}
	case refCanonical:
		if ref.canon == nil {
			return -1
		}
		if idx, ok := s.archIndex[ref.canon.CanonicalString()]; ok {
			return idx
		}
	}
	return -1
}
