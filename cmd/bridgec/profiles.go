package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"bridgec/internal/abi"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles [name]",
	Short: "List builtin ABI profiles or show one in detail",
	Long: `List the builtin ABI profiles, or show the full rule set of one profile.
The argument accepts a builtin name or a custom profile TOML path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfiles,
}

func runProfiles(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, name := range abi.BuiltinNames() {
			p, ok := abi.Builtin(name)
			if !ok {
				continue
			}
			fmt.Fprintf(os.Stdout, "%-22s %s\n", name, p.Triple)
		}
		return nil
	}
	p, err := abi.Resolve(args[0])
	if err != nil {
		return err
	}
	printProfileDetail(os.Stdout, p)
	return nil
}

func printProfileDetail(out io.Writer, p *abi.Profile) {
	fmt.Fprintf(out, "%s (%s)\n", p.Name, p.Triple)
	fmt.Fprintf(out, "  pointer:       %d bytes, align %d\n", p.PointerSize, p.PointerAlign)
	fmt.Fprintf(out, "  direct limit:  %d words (%d bytes)\n", p.MaxDirectWords, p.MaxDirectBytes())
	fmt.Fprintf(out, "  value limit:   %d bytes\n", p.MaxValueSize)
	if p.Packing == abi.PackingSpareBit {
		fmt.Fprintf(out, "  packing:       %s (cap %d)\n", p.Packing, p.SpareBitCap)
	} else {
		fmt.Fprintf(out, "  packing:       %s\n", p.Packing)
	}
	fmt.Fprintf(out, "  symbol prefix: %s\n", p.SymbolPrefix)
	fmt.Fprintf(out, "  runtime:       %s / %s\n", p.Runtime.Retain, p.Runtime.Release)
	fmt.Fprintf(out, "                 %s / %s\n", p.Runtime.UnknownRetain, p.Runtime.UnknownRelease)
	if len(p.NonTrivial) > 0 {
		names := make([]string, 0, len(p.NonTrivial))
		for name := range p.NonTrivial {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(out, "  non-trivial:   %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(out, "  fingerprint:   %s\n", p.Fingerprint())
}
