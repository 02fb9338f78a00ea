package gencache

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"sort"

	"bridgec/internal/abi"
	"bridgec/internal/descriptor"
)

// Key hashes everything that determines the output bytes: the canonical
// rendering of the declaration set, the profile fingerprint, and the tool
// version. Declarations are rendered in sorted order, so the key does not
// depend on intake order.
func Key(prof *abi.Profile, reg *descriptor.Registry, decls []descriptor.Decl, toolVersion string) Digest {
	h := sha256.New()
	fmt.Fprintf(h, "schema=%d\x00tool=%s\x00profile=%s\x00", cacheSchemaVersion, toolVersion, prof.Fingerprint())

	sorted := make([]descriptor.Decl, len(decls))
	copy(sorted, decls)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	w := &shapeWriter{h: h, reg: reg, seen: make(map[descriptor.TypeID]bool, 16)}
	for _, d := range sorted {
		switch d.Kind {
		case descriptor.DeclType:
			fmt.Fprintf(h, "type %s=", d.Name)
			w.writeType(d.Type)
		case descriptor.DeclFunc:
			fmt.Fprintf(h, "func %s", d.Name)
			w.writeSignature(d.Sig)
		}
		_, _ = h.Write([]byte{0})
	}

	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// shapeWriter streams a deep structural rendering of types into the hash.
// Every TypeID expands in full exactly once; later references write a back
// reference, which keeps the stream linear even on heavily shared graphs
// and terminates on unvalidated cyclic input.
type shapeWriter struct {
	h    hash.Hash
	reg  *descriptor.Registry
	seen map[descriptor.TypeID]bool
}

func (w *shapeWriter) str(s string) {
	_, _ = io.WriteString(w.h, s)
}

func (w *shapeWriter) writeType(id descriptor.TypeID) {
	if w.seen[id] {
		fmt.Fprintf(w.h, "#%d", id)
		return
	}
	w.seen[id] = true
	tt, ok := w.reg.Lookup(id)
	if !ok {
		fmt.Fprintf(w.h, "?%d", id)
		return
	}
	switch tt.Kind {
	case descriptor.KindScalar, descriptor.KindClassRef, descriptor.KindExistential:
		// Scalars are self-describing; reference kinds are indirection
		// boundaries whose name is their whole identity.
		w.str(w.reg.String(id))
	case descriptor.KindStruct:
		info, ok := w.reg.StructInfo(id)
		if !ok {
			fmt.Fprintf(w.h, "?%d", id)
			return
		}
		fmt.Fprintf(w.h, "struct %s{", info.Name)
		for i, f := range info.Fields {
			if i > 0 {
				w.str(";")
			}
			w.str(f.Name)
			w.str(":")
			w.writeType(f.Type)
		}
		w.str("}")
	case descriptor.KindEnum:
		info, ok := w.reg.EnumInfo(id)
		if !ok {
			fmt.Fprintf(w.h, "?%d", id)
			return
		}
		fmt.Fprintf(w.h, "enum %s{", info.Name)
		for i, c := range info.Cases {
			if i > 0 {
				w.str("|")
			}
			w.str(c.Name)
			if c.Payload != descriptor.NoTypeID {
				w.str(":")
				w.writeType(c.Payload)
			}
		}
		w.str("}")
	case descriptor.KindTuple:
		info, ok := w.reg.TupleInfo(id)
		if !ok {
			fmt.Fprintf(w.h, "?%d", id)
			return
		}
		w.str("(")
		for i, elem := range info.Elems {
			if i > 0 {
				w.str(",")
			}
			w.writeType(elem)
		}
		w.str(")")
	case descriptor.KindFixedArray:
		fmt.Fprintf(w.h, "[%d]", tt.Count)
		w.writeType(tt.Elem)
	case descriptor.KindDynContainer:
		w.str("container<")
		w.writeType(tt.Elem)
		w.str(">")
	default:
		fmt.Fprintf(w.h, "kind%d", tt.Kind)
	}
}

func (w *shapeWriter) writeSignature(sig *descriptor.Signature) {
	if sig == nil {
		w.str("(nil)")
		return
	}
	w.str("(")
	for i := range sig.Params {
		p := &sig.Params[i]
		if i > 0 {
			w.str(",")
		}
		w.str(p.Name)
		w.str(":")
		w.writeType(p.Type)
		if p.Inout {
			w.str(" inout")
		}
		if p.Consumed {
			w.str(" consumed")
		}
	}
	w.str(")")
	if sig.Result != descriptor.NoTypeID {
		w.str("->")
		w.writeType(sig.Result)
	}
	if sig.Throws {
		w.str(" throws")
	}
	if sig.Autoreleased {
		w.str(" autoreleased")
	}
}
