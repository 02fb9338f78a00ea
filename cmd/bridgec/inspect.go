package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"bridgec/internal/descriptor"
	"bridgec/internal/diag"
	"bridgec/internal/diagfmt"
	"bridgec/internal/frontend"
	"bridgec/internal/genpipeline"
	"bridgec/internal/layout"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <type> [decls.json ...]",
	Short: "Show the resolved layout of one declared type",
	Long: `Resolve a declared type under an ABI profile and print its computed
layout: size, alignment, stride, field offsets, and discriminant placement.
Without file arguments the declaration sets come from the nearest bridge.toml.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("profile", "", "ABI profile name or profile TOML path")
	inspectCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type layoutReport struct {
	Profile     string              `json:"profile"`
	Type        string              `json:"type"`
	Size        int64               `json:"size"`
	Align       int64               `json:"align"`
	Stride      int64               `json:"stride"`
	AddressOnly bool                `json:"address_only"`
	Trivial     bool                `json:"trivial"`
	Fields      []layoutFieldReport `json:"fields,omitempty"`
	Tag         *layoutTagReport    `json:"tag,omitempty"`
}

type layoutFieldReport struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

type layoutTagReport struct {
	Offset int64 `json:"offset"`
	Width  int64 `json:"width"`
	Packed bool  `json:"packed"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	typeName := norm.NFC.String(args[0])

	profileArg, err := cmd.Flags().GetString("profile")
	if err != nil {
		return fmt.Errorf("failed to get profile flag: %w", err)
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch format {
	case "pretty", "json":
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	cfg, err := resolveGenerateConfig(".", args[1:], profileArg, "", 0, true)
	if err != nil {
		return err
	}
	profile, err := resolveProfile(cfg)
	if err != nil {
		return err
	}

	bag := diag.NewBag(maxDiagnostics)
	reg, decls, err := frontend.Load(cfg.declFiles, bag)
	if err != nil {
		return err
	}
	useColor := colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))

	id := descriptor.NoTypeID
	found := false
	for i := range decls {
		if decls[i].Kind == descriptor.DeclType && decls[i].Name == typeName {
			id = decls[i].Type
			found = true
			break
		}
	}
	if !found {
		// The load diagnostics usually explain a missing name.
		diagfmt.Pretty(os.Stderr, bag, diagfmt.PrettyOpts{Max: maxDiagnostics, ShowNotes: true})
		return fmt.Errorf("unknown type %q", typeName)
	}

	res := layout.NewResolver(profile, reg)
	l, err := res.Of(id)
	if err != nil {
		genpipeline.Classify(bag, reg, typeName, err)
		diagfmt.Pretty(os.Stdout, bag, diagfmt.PrettyOpts{Color: useColor, Max: maxDiagnostics, ShowNotes: true})
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return exitCodeError{code: 1}
	}

	report := buildLayoutReport(profile.Name, typeName, res, l, reg)
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode layout report: %w", err)
		}
		return nil
	}
	printLayoutReport(os.Stdout, &report, useColor)
	return nil
}

func buildLayoutReport(profile, name string, res *layout.Resolver, l layout.Layout, reg *descriptor.Registry) layoutReport {
	report := layoutReport{
		Profile:     profile,
		Type:        name,
		Size:        l.Size,
		Align:       l.Align,
		Stride:      l.Stride,
		AddressOnly: l.AddressOnly,
		Trivial:     l.Trivial,
	}
	for _, f := range l.Fields {
		size, err := res.SizeOf(f.Type)
		if err != nil {
			size = 0
		}
		report.Fields = append(report.Fields, layoutFieldReport{
			Name:   f.Name,
			Type:   reg.String(f.Type),
			Offset: f.Offset,
			Size:   size,
		})
	}
	if l.Enum != nil {
		report.Tag = &layoutTagReport{
			Offset: l.Enum.TagOffset,
			Width:  l.Enum.TagWidth,
			Packed: l.Enum.Packed,
		}
	}
	return report
}

func printLayoutReport(out io.Writer, r *layoutReport, useColor bool) {
	name := r.Type
	if useColor {
		name = color.New(color.Bold).Sprint(r.Type)
	}
	fmt.Fprintf(out, "%s (%s)\n", name, r.Profile)
	fmt.Fprintf(out, "  size %d  align %d  stride %d\n", r.Size, r.Align, r.Stride)
	traits := make([]string, 0, 2)
	if r.AddressOnly {
		traits = append(traits, "address-only")
	} else {
		traits = append(traits, "loadable")
	}
	if r.Trivial {
		traits = append(traits, "trivial")
	} else {
		traits = append(traits, "non-trivial")
	}
	fmt.Fprintf(out, "  %s\n", strings.Join(traits, ", "))
	if len(r.Fields) > 0 {
		fmt.Fprintln(out, "  fields:")
		width := 0
		for _, f := range r.Fields {
			if len(f.Name) > width {
				width = len(f.Name)
			}
		}
		for _, f := range r.Fields {
			fmt.Fprintf(out, "    %-*s  offset %3d  size %3d  %s\n", width, f.Name, f.Offset, f.Size, f.Type)
		}
	}
	if r.Tag != nil {
		if r.Tag.Packed {
			fmt.Fprintln(out, "  tag: packed into payload spare bits")
		} else {
			fmt.Fprintf(out, "  tag: offset %d  width %d\n", r.Tag.Offset, r.Tag.Width)
		}
	}
}
