// Package report summarizes a compiler run: methods and types discovered per
// module, external packages consumed, and the warnings raised along the way.
// Output is deterministic so repeated runs over unchanged source print the
// same summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/mm-zacharydavison/rpckit/internal/compiler"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
)

// ModuleSummary describes one module's share of the contract surface.
type ModuleSummary struct {
	Name      string   `json:"name"`
	Methods   int      `json:"methods"`
	Patterns  []string `json:"patterns"`
	Types     int      `json:"types"`
	Enums     int      `json:"enums"`
	Structs   int      `json:"structs"`
	Externals []string `json:"externals,omitempty"`
	Cyclic    []string `json:"cyclic,omitempty"`
}

// Summary is the deterministic digest of one run.
type Summary struct {
	Modules   []ModuleSummary `json:"modules"`
	Contracts int             `json:"contracts"`
	Types     int             `json:"types"`
	Externals int             `json:"externals"`
	Warnings  []string        `json:"warnings,omitempty"`
	Artifacts []string        `json:"artifacts,omitempty"`
}

// Build digests a compiler result. Modules are sorted by name; patterns and
// external packages are sorted within each module.
func Build(result *compiler.Result) *Summary {
	s := &Summary{
		Contracts: result.Contracts.Len(),
		Types:     len(result.Index.Order),
		Externals: len(result.Index.External),
	}

	byModule := make(map[string]*contract.Resolution, len(result.Resolutions))
	for _, res := range result.Resolutions {
		byModule[res.Module] = res
	}

	names := make([]string, len(result.Contracts.Modules))
	copy(names, result.Contracts.Modules)
	sort.Strings(names)

	for _, name := range names {
		ms := ModuleSummary{Name: name}
		for _, c := range result.Contracts.ByModule[name] {
			ms.Methods++
			ms.Patterns = append(ms.Patterns, c.Pattern)
		}
		sort.Strings(ms.Patterns)

		if res := byModule[name]; res != nil {
			ms.Types = len(res.Ordered)
			for _, def := range res.Ordered {
				switch def.Kind {
				case contract.KindEnum:
					ms.Enums++
				case contract.KindStruct:
					ms.Structs++
				}
			}
			packages := make(map[string]bool)
			for _, rec := range res.External {
				packages[rec.Package] = true
			}
			for pkg := range packages {
				ms.Externals = append(ms.Externals, pkg)
			}
			sort.Strings(ms.Externals)
			ms.Cyclic = res.Cyclic
		}
		s.Modules = append(s.Modules, ms)
	}

	for _, d := range result.Diagnostics.Warnings() {
		s.Warnings = append(s.Warnings, d.Error())
	}
	if result.Emission != nil {
		s.Artifacts = append(s.Artifacts, result.Emission.Files...)
	}
	return s
}

// WriteTable renders the summary for terminals.
func (s *Summary) WriteTable(w io.Writer) {
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	warn := color.New(color.FgYellow)

	title.Fprintf(w, "Contract summary: %d modules, %d methods, %d types, %d external references\n",
		len(s.Modules), s.Contracts, s.Types, s.Externals)

	for _, ms := range s.Modules {
		fmt.Fprintf(w, "\n  %s  %d methods, %d types (%d enums, %d structs)\n",
			color.GreenString(ms.Name), ms.Methods, ms.Types, ms.Enums, ms.Structs)
		for _, pattern := range ms.Patterns {
			fmt.Fprintf(w, "    %s\n", pattern)
		}
		if len(ms.Externals) > 0 {
			dim.Fprintf(w, "    external: %v\n", ms.Externals)
		}
		if len(ms.Cyclic) > 0 {
			warn.Fprintf(w, "    cyclic types: %v\n", ms.Cyclic)
		}
	}

	if len(s.Warnings) > 0 {
		warn.Fprintf(w, "\n%d warnings:\n", len(s.Warnings))
		for _, msg := range s.Warnings {
			warn.Fprintf(w, "  %s\n", msg)
		}
	}
}

// WriteJSON renders the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
