package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const maxSeedBytes = 64 << 10 // 64 KiB cap for the shipped corpus

func addCorpusSeeds(f *testing.F) {
	addTestdataSeeds(f)
	addSchemaSeeds(f)
}

// addTestdataSeeds walks the repository testdata tree and seeds every
// declaration set it finds, so the corpus starts from real inputs.
func addTestdataSeeds(f *testing.F) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
	if err != nil {
		return
	}
	f.Add([]byte{})
	f.Add([]byte(`{"schema_version": 1, "decls": []}`))
}

// addSchemaSeeds covers every declaration and type-expression form the reader
// understands, plus shapes it must refuse cleanly. Mutations of these reach
// the interesting branches much faster than raw bytes do.
func addSchemaSeeds(f *testing.F) {
	seeds := []string{
		// every declaration form
		`{"schema_version": 1, "decls": [
			{"struct": "Point", "fields": [{"name": "x", "type": "f64"}, {"name": "y", "type": "f64"}]},
			{"enum": "Reply", "cases": [{"name": "none"}, {"name": "value", "payload": "i64"}]},
			{"type": "Quad", "is": {"array": {"of": "Point", "count": 4}}},
			{"func": "scale", "params": [{"name": "p", "type": "Point"}, {"name": "k", "type": "f64"}], "result": "Point"}
		]}`,
		// every type-expression form in one struct
		`{"decls": [
			{"struct": "Inner", "fields": [{"name": "v", "type": "i32"}]},
			{"struct": "Grab", "fields": [
				{"name": "r", "type": {"ref": "Inner"}},
				{"name": "a", "type": {"array": {"of": "u8", "count": 16}}},
				{"name": "c", "type": {"container": "i64"}},
				{"name": "t", "type": {"tuple": ["i8", "i64"]}},
				{"name": "h", "type": {"class": "Widget"}},
				{"name": "w", "type": {"class": "Widget", "strength": "weak"}},
				{"name": "u", "type": {"class": "Widget", "strength": "unowned"}},
				{"name": "e", "type": {"any": []}},
				{"name": "p", "type": {"any": ["Drawable", "Equatable"]}}
			]}
		]}`,
		// effectful signatures
		`{"decls": [
			{"struct": "Job", "fields": [{"name": "id", "type": "u64"}]},
			{"func": "submit", "params": [{"name": "j", "type": "Job", "consumed": true}], "throws": true},
			{"func": "bump", "params": [{"name": "j", "type": "Job", "inout": true}]},
			{"func": "title", "params": [{"name": "j", "type": "Job"}], "result": {"class": "NSString"}, "autoreleased": true}
		]}`,
		// shapes that must be refused without taking siblings down
		`{"decls": [
			{"struct": "Loop", "fields": [{"name": "next", "type": "Loop"}]},
			{"struct": "_hidden", "fields": []},
			{"struct": "Ok", "fields": [{"name": "n", "type": "i8"}]},
			{"struct": "Twice", "fields": [{"name": "a", "type": "bool"}, {"name": "a", "type": "bool"}]},
			{"enum": "Empty", "cases": []},
			{"func": "orphan", "params": [{"name": "x", "type": "Ghost"}]}
		]}`,
		// envelope-level refusals
		`{"schema_version": 2, "decls": []}`,
		`{"decls": [{"struct": "A", "enum": "B"}]}`,
		`{"decls": [{"struct": "A", "fields": [{"name": "x", "type": {"array": {"of": "u8", "count": 0}}}]}]}`,
		`{"decls": [{"struct": "A", "fields": [{"name": "x", "type": {"ref": "u8", "count": 1}}]}]}`,
		`{"decls": "not a list"}`,
		`{"decls": [{"type": "Alias"}]}`,
		// both spellings of é normalize first, then fail the identifier check
		"{\"decls\": [{\"struct\": \"café\", \"fields\": []}, {\"struct\": \"café\", \"fields\": []}]}",
	}
	for _, seed := range seeds {
		f.Add(clampSeed([]byte(seed)))
	}
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
