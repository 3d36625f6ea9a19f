// Package resolve implements the dependency resolution pass. For every
// module it computes the closure of type definitions reachable from the
// module's method signatures, partitions references into locally declared
// types and external imports, and orders the local closure so every
// definition appears before its first use. Cycles are tolerated: their
// members are reported and appended in discovery order.
package resolve

import (
	"sort"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/typetext"
)

// Resolver computes per-module resolutions from the discovery and
// extraction outputs.
type Resolver struct {
	set   *contract.ContractSet
	index *contract.Index
	diags *rpcerrors.List
}

// New creates a resolver.
func New(set *contract.ContractSet, index *contract.Index, diags *rpcerrors.List) *Resolver {
	return &Resolver{set: set, index: index, diags: diags}
}

// Resolve returns one resolution per module, in module discovery order.
func (r *Resolver) Resolve() []*contract.Resolution {
	resolutions := make([]*contract.Resolution, 0, len(r.set.Modules))
	for _, module := range r.set.Modules {
		resolutions = append(resolutions, r.resolveModule(module))
	}
	return resolutions
}

// resolveModule seeds the closure from the module's signatures and expands
// it through the source text of every reachable definition.
func (r *Resolver) resolveModule(module string) *contract.Resolution {
	res := &contract.Resolution{Module: module}

	var order []string              // closure members, first-seen
	var queue []string              // unexpanded members
	seen := make(map[string]bool)   // closure membership
	tokens := make(map[string][]string) // member -> bare tokens in its source
	externals := make(map[string]contract.ExternalImportRecord)

	enqueue := func(name string) {
		if seen[name] {
			return
		}
		if _, ok := r.index.Lookup(name); !ok {
			return
		}
		seen[name] = true
		order = append(order, name)
		queue = append(queue, name)
	}

	addText := func(text string, skip map[string]bool) {
		for _, tok := range typetext.Identifiers(text) {
			if strings.Contains(tok, ".") {
				if rec, ok := r.index.External[tok]; ok {
					externals[tok] = rec
				}
				continue
			}
			if skip[tok] {
				continue
			}
			enqueue(tok)
		}
	}

	for _, c := range r.set.ByModule[module] {
		skip := typeParamSet(c.TypeParams)
		for _, p := range c.Params {
			addText(p.Type, skip)
		}
		if c.Result != "" {
			addText(c.Result, skip)
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		def, _ := r.index.Lookup(name)

		var bare []string
		for _, tok := range typetext.Identifiers(def.Source) {
			if strings.Contains(tok, ".") {
				if rec, ok := r.index.External[tok]; ok {
					externals[tok] = rec
				}
				continue
			}
			bare = append(bare, tok)
			enqueue(tok)
		}
		tokens[name] = bare
	}

	r.orderClosure(res, order, seen, tokens)

	names := make([]string, 0, len(externals))
	for name := range externals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res.External = append(res.External, externals[name])
	}

	return res
}

// orderClosure emits the closure in dependency order: a definition is ready
// once every closure member its source mentions has been emitted. Ready
// members emit in first-seen order, which keeps repeated runs byte-stable.
// When no member is ready the remainder contains a cycle; it is appended in
// first-seen order and the cycle participants are reported.
func (r *Resolver) orderClosure(res *contract.Resolution, order []string, inClosure map[string]bool, tokens map[string][]string) {
	deps := make(map[string]map[string]bool, len(order))
	for _, name := range order {
		d := make(map[string]bool)
		for _, tok := range tokens[name] {
			if tok != name && inClosure[tok] {
				d[tok] = true
			}
		}
		deps[name] = d
	}

	done := make(map[string]bool, len(order))
	for len(res.Ordered) < len(order) {
		progressed := false
		for _, name := range order {
			if done[name] || len(deps[name]) > 0 {
				continue
			}
			done[name] = true
			res.Ordered = append(res.Ordered, r.mustLookup(name))
			for _, other := range order {
				delete(deps[other], name)
			}
			progressed = true
		}
		if progressed {
			continue
		}

		// The unresolved remainder: actual cycle members plus anything
		// blocked behind them.
		var residue []string
		for _, name := range order {
			if !done[name] {
				residue = append(residue, name)
			}
		}
		for _, name := range residue {
			if selfReachable(name, deps) {
				res.Cyclic = append(res.Cyclic, name)
			}
		}
		for _, name := range residue {
			done[name] = true
			res.Ordered = append(res.Ordered, r.mustLookup(name))
		}
		r.diags.Append(rpcerrors.Warningf("resolve", rpcerrors.CodeTypeCycle,
			rpcerrors.SourceLocation{},
			"module %s has a type dependency cycle involving %s",
			res.Module, strings.Join(res.Cyclic, ", ")))
	}
}

// selfReachable reports whether name can reach itself through the remaining
// dependency edges.
func selfReachable(name string, deps map[string]map[string]bool) bool {
	visited := make(map[string]bool)
	var walk func(from string) bool
	walk = func(from string) bool {
		for dep := range deps[from] {
			if dep == name {
				return true
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(name)
}

func (r *Resolver) mustLookup(name string) *contract.TypeDefinition {
	def, _ := r.index.Lookup(name)
	return def
}

func typeParamSet(params []contract.TypeParam) map[string]bool {
	if len(params) == 0 {
		return nil
	}
	set := make(map[string]bool, len(params))
	for _, p := range params {
		set[p.Name] = true
	}
	return set
}
