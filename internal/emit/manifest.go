package emit

import (
	"encoding/json"
	"io"

	"bridgec/internal/abi"
	"bridgec/internal/layout"
)

// manifestSchemaVersion is bumped whenever the manifest shape changes.
const manifestSchemaVersion = 1

// Manifest maps declaration identities onto generated symbols and resolved
// layouts. The build pipeline links against the symbols; native code uses
// the layout records to access enum tags and fields the C mirror keeps
// opaque.
type Manifest struct {
	Schema  int             `json:"schema_version"`
	Profile ProfileManifest `json:"profile"`
	Types   []TypeRecord    `json:"types"`
	Funcs   []FuncRecord    `json:"functions"`
}

// ProfileManifest identifies the ABI profile a bridge set was generated
// under. Fingerprint changes whenever any layout rule changes.
type ProfileManifest struct {
	Name        string `json:"name"`
	Triple      string `json:"triple"`
	Fingerprint string `json:"fingerprint"`
}

// TypeRecord is the resolved layout of one type declaration.
type TypeRecord struct {
	Name        string        `json:"name"`
	CType       string        `json:"c_type"`
	Size        int64         `json:"size"`
	Align       int64         `json:"align"`
	Stride      int64         `json:"stride"`
	AddressOnly bool          `json:"address_only,omitempty"`
	Trivial     bool          `json:"trivial,omitempty"`
	Fields      []FieldRecord `json:"fields,omitempty"`
	Tag         *TagRecord    `json:"tag,omitempty"`
}

// FieldRecord is one resolved field placement.
type FieldRecord struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
}

// TagRecord describes enum discriminant placement. A packed enum stores the
// discriminant in spare pointer bits and has width 0.
type TagRecord struct {
	Offset int64    `json:"offset"`
	Width  int64    `json:"width"`
	Packed bool     `json:"packed,omitempty"`
	Cases  []string `json:"cases"`
}

// FuncRecord names every symbol one bridged function touches.
type FuncRecord struct {
	Name    string `json:"name"`
	Foreign string `json:"foreign"`
	Forward string `json:"forward"`
	Reverse string `json:"reverse"`
	Impl    string `json:"impl"`
	Result  string `json:"result_type,omitempty"`
	Throws  bool   `json:"throws,omitempty"`
}

func newManifest(prof *abi.Profile) Manifest {
	return Manifest{
		Schema: manifestSchemaVersion,
		Profile: ProfileManifest{
			Name:        prof.Name,
			Triple:      prof.Triple,
			Fingerprint: prof.Fingerprint(),
		},
	}
}

// EncodeJSON writes the manifest with stable two-space indentation. Records
// are already sorted by declaration identity, so equal inputs serialize
// byte-identically.
func (m *Manifest) EncodeJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(m)
}

func typeRecord(name, ctype string, l layout.Layout, cases []string) TypeRecord {
	rec := TypeRecord{
		Name:        name,
		CType:       ctype,
		Size:        l.Size,
		Align:       l.Align,
		Stride:      l.Stride,
		AddressOnly: l.AddressOnly,
		Trivial:     l.Trivial,
	}
	for _, f := range l.Fields {
		rec.Fields = append(rec.Fields, FieldRecord{Name: cFieldName(f.Name), Offset: f.Offset})
	}
	if l.Enum != nil {
		rec.Tag = &TagRecord{
			Offset: l.Enum.TagOffset,
			Width:  l.Enum.TagWidth,
			Packed: l.Enum.Packed,
			Cases:  cases,
		}
	}
	return rec
}
