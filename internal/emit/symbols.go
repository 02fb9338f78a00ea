package emit

import (
	"fmt"
	"strings"
)

// Generated symbols derive from the profile's symbol prefix so several
// bridge sets can link into one binary without clashing.

func (e *Emitter) forwardSymbol(name string) string {
	return e.profile.SymbolPrefix + "fwd_" + name
}

func (e *Emitter) reverseSymbol(name string) string {
	return e.profile.SymbolPrefix + "rev_" + name
}

func (e *Emitter) implSymbol(name string) string {
	return e.profile.SymbolPrefix + "impl_" + name
}

func (e *Emitter) resultTypeName(name string) string {
	return e.profile.SymbolPrefix + "result_" + name
}

func (e *Emitter) synthTupleName() string {
	name := fmt.Sprintf("%stuple%d", e.profile.SymbolPrefix, e.synthSeq)
	e.synthSeq++
	return name
}

func (e *Emitter) synthArrayName() string {
	name := fmt.Sprintf("%sarray%d", e.profile.SymbolPrefix, e.synthSeq)
	e.synthSeq++
	return name
}

// checkCName rejects identifiers the generated C cannot carry: C keywords,
// names colliding with the prelude, and names inside the profile's symbol
// prefix namespace, which is reserved for generated code.
func (e *Emitter) checkCName(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if cReserved[name] {
		return fmt.Errorf("identifier %q is reserved in C", name)
	}
	if e.profile.SymbolPrefix != "" && strings.HasPrefix(name, e.profile.SymbolPrefix) {
		return fmt.Errorf("identifier %q collides with the generated symbol prefix %q", name, e.profile.SymbolPrefix)
	}
	return nil
}

// cReserved covers C11 keywords plus the names bridge_prelude.h defines.
var cReserved = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extern": true, "float": true, "for": true, "goto": true,
	"if": true, "inline": true, "int": true, "long": true, "register": true,
	"restrict": true, "return": true, "short": true, "signed": true,
	"sizeof": true, "static": true, "struct": true, "switch": true,
	"typedef": true, "union": true, "unsigned": true, "void": true,
	"volatile": true, "while": true,
	"bool": true, "true": true, "false": true, "offsetof": true,
	"memset": true, "memcpy": true,
	"bridge_ref": true, "bridge_error": true, "bridge_existential": true,
}
