package emit

import (
	"sort"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/typetext"
)

// runtimeImport is the runtime package the aggregate artifact builds on.
const runtimeImport = "github.com/mm-zacharydavison/rpckit/pkg/rpc"

// aliasPlan decides which names the aggregate re-exports. A type name shared
// by several module closures is aliased once, from the first module in
// sorted order; generic types stay per-module because their aliases would
// need type parameters of their own.
type aliasPlan struct {
	types  []aliasEntry
	consts []aliasEntry
	used   map[string]bool // modules contributing at least one entry
}

type aliasEntry struct {
	name   string
	module string
}

// aggregateFile renders the artifact that bundles every module: alias
// re-exports, the flattened signature map, merged codec tables, and the
// typed client.
func (e *Emitter) aggregateFile() []byte {
	g := newGenerator()
	modules := e.sortedModules()
	plan := e.planAliases(modules)
	contracts := e.sortedContracts()

	g.writeLine(header)
	g.writeLine("")
	g.writeLine("// Package %s aggregates every module contract behind one import.", e.pkg)
	g.writeLine("package %s", e.pkg)
	g.writeLine("")

	g.addImport("context")
	g.addImport(runtimeImport)
	for _, module := range modules {
		if plan.used[module] {
			g.addImport(e.importBase + "/" + module)
		}
	}
	e.addSignatureImports(g, contracts)
	g.writeImports()

	e.writeAliases(g, plan)
	e.writeSignatures(g, contracts)
	e.writeCodecTable(g, "Codecs merges every module's codec tables.",
		"Codecs", e.index.Codecs.Owners())
	g.writeLine("")
	e.writePatternCodecs(g, contracts)
	e.writeClient(g, modules)

	return g.bytes()
}

// planAliases claims one alias per type name and per enum const name. A name
// colliding with one of the aggregate's own declarations gets no alias;
// the collision is surfaced as a warning and every signature reference to
// the type stays module-qualified.
func (e *Emitter) planAliases(modules []string) *aliasPlan {
	plan := &aliasPlan{used: make(map[string]bool)}

	e.reserved = map[string]bool{
		"Client":        true,
		"NewClient":     true,
		"Signatures":    true,
		"Codecs":        true,
		"PatternCodecs": true,
	}
	for _, module := range modules {
		e.reserved[exportName(module)+"Client"] = true
	}

	claimed := make(map[string]bool)
	for _, module := range modules {
		res := e.byModule[module]
		for _, def := range res.Ordered {
			if def.Generic() || claimed[def.Name] {
				continue
			}
			if e.reserved[def.Name] {
				e.diags.Append(rpcerrors.Warningf("emit", rpcerrors.CodeNameConflict,
					rpcerrors.SourceLocation{},
					"type %s collides with an aggregate declaration; not re-exported, references use %s.%s",
					def.Name, module, def.Name))
				continue
			}
			claimed[def.Name] = true
			plan.used[module] = true
			plan.types = append(plan.types, aliasEntry{name: def.Name, module: module})

			for _, constName := range def.ConstNames {
				if claimed[constName] {
					continue
				}
				if e.reserved[constName] {
					e.diags.Append(rpcerrors.Warningf("emit", rpcerrors.CodeNameConflict,
						rpcerrors.SourceLocation{},
						"const %s collides with an aggregate declaration; not re-exported, use %s.%s",
						constName, module, constName))
					continue
				}
				claimed[constName] = true
				plan.consts = append(plan.consts, aliasEntry{name: constName, module: module})
			}
		}
	}
	return plan
}

// addSignatureImports registers the packages forwarder signatures reach
// beyond the alias re-exports: external packages whose types appear in a
// parameter or result, and the home subpackage of any local type without an
// alias, which stays module-qualified.
func (e *Emitter) addSignatureImports(g *generator, contracts []*contract.ServiceMethodContract) {
	for _, c := range contracts {
		texts := make([]string, 0, len(c.Params)+1)
		for _, p := range c.Params {
			texts = append(texts, p.Type)
		}
		if c.Result != "" {
			texts = append(texts, c.Result)
		}
		for _, text := range texts {
			for _, tok := range typetext.Identifiers(text) {
				if strings.Contains(tok, ".") {
					if rec, ok := e.index.External[tok]; ok {
						g.addImport(rec.Package)
					}
					continue
				}
				if module, ok := e.unaliasedHome(tok); ok {
					g.addImport(e.importBase + "/" + module)
				}
			}
		}
	}
}

// unaliasedHome returns the emitting module of a local type the aggregate
// does not re-export: generic types (an alias would need type parameters of
// its own) and types whose name collides with an aggregate declaration.
// Signature rendering qualifies these by module instead.
func (e *Emitter) unaliasedHome(name string) (string, bool) {
	def, ok := e.index.Lookup(name)
	if !ok {
		return "", false
	}
	if !def.Generic() && !e.reserved[name] {
		return "", false
	}
	for _, res := range e.resolutions {
		for _, emitted := range res.Ordered {
			if emitted.Name == name {
				return res.Module, true
			}
		}
	}
	return "", false
}

// writeAliases renders the type and const re-exports.
func (e *Emitter) writeAliases(g *generator, plan *aliasPlan) {
	if len(plan.types) == 0 {
		return
	}

	g.writeLine("// Re-exported module types.")
	g.writeLine("type (")
	g.indent++
	for _, entry := range plan.types {
		g.writeLine("%s = %s.%s", entry.name, entry.module, entry.name)
	}
	g.indent--
	g.writeLine(")")
	g.writeLine("")

	if len(plan.consts) == 0 {
		return
	}
	g.writeLine("// Re-exported enum values.")
	g.writeLine("const (")
	g.indent++
	for _, entry := range plan.consts {
		g.writeLine("%s = %s.%s", entry.name, entry.module, entry.name)
	}
	g.indent--
	g.writeLine(")")
	g.writeLine("")
}

// writeSignatures renders the flattened signature map, sorted by pattern.
func (e *Emitter) writeSignatures(g *generator, contracts []*contract.ServiceMethodContract) {
	g.writeLine("// Signatures maps every dispatch pattern to its flattened request and")
	g.writeLine("// response shape. Generic parameters appear as any.")
	g.writeLine("var Signatures = map[string]rpc.Signature{")
	g.indent++
	for _, c := range contracts {
		repl := typeParamRepl(c.TypeParams)
		g.writeLine("%q: {", c.Pattern)
		g.indent++
		if len(c.Params) > 0 {
			g.writeLine("Params: []rpc.Param{")
			g.indent++
			for _, p := range c.Params {
				g.writeLine("{Name: %q, Type: %q},", p.Name, typetext.ReplaceIdents(p.Type, repl))
			}
			g.indent--
			g.writeLine("},")
		}
		if c.Result != "" {
			g.writeLine("Result: %q,", typetext.ReplaceIdents(c.Result, repl))
		}
		if c.HasContext {
			g.writeLine("HasContext: true,")
		}
		if c.HasError {
			g.writeLine("HasError: true,")
		}
		g.indent--
		g.writeLine("},")
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")
}

// writePatternCodecs renders the per-pattern codec involvement map. Only
// patterns whose parameters or result reach a codec-bearing type appear.
func (e *Emitter) writePatternCodecs(g *generator, contracts []*contract.ServiceMethodContract) {
	type patternEntry struct {
		c      *contract.ServiceMethodContract
		params map[string]string
		result string
	}

	var entries []patternEntry
	for _, c := range contracts {
		entry := patternEntry{c: c, params: make(map[string]string)}
		for _, p := range c.Params {
			if codec := e.codecOf(p.Type); codec != "" {
				entry.params[p.Name] = codec
			}
		}
		entry.result = e.codecOf(c.Result)
		if len(entry.params) > 0 || entry.result != "" {
			entries = append(entries, entry)
		}
	}

	g.writeLine("// PatternCodecs maps the patterns whose payloads involve codec-bearing")
	g.writeLine("// types to the codec of each involved parameter and result.")
	if len(entries) == 0 {
		g.writeLine("var PatternCodecs = map[string]rpc.PatternCodec{}")
		g.writeLine("")
		return
	}

	g.writeLine("var PatternCodecs = map[string]rpc.PatternCodec{")
	g.indent++
	for _, entry := range entries {
		g.writeLine("%q: {", entry.c.Pattern)
		g.indent++
		if len(entry.params) > 0 {
			g.writeLine("Params: map[string]string{")
			g.indent++
			for _, name := range sortedKeys(entry.params) {
				g.writeLine("%q: %q,", name, entry.params[name])
			}
			g.indent--
			g.writeLine("},")
		}
		if entry.result != "" {
			g.writeLine("Result: %q,", entry.result)
		}
		g.indent--
		g.writeLine("},")
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")
}

// codecOf returns the codec involvement of a signature type text: the
// timestamp codec for direct time.Time mentions, a nested reference for the
// first codec-bearing declared type, or "" when decoding needs no help.
func (e *Emitter) codecOf(text string) string {
	if text == "" {
		return ""
	}
	for _, tok := range typetext.Identifiers(text) {
		if tok == "time.Time" {
			return contract.CodecTimestamp
		}
		if strings.Contains(tok, ".") {
			continue
		}
		if len(e.index.Codecs[tok]) > 0 {
			return "@" + tok
		}
	}
	return ""
}

// writeClient renders the aggregate client and one typed caller per module.
func (e *Emitter) writeClient(g *generator, modules []string) {
	g.writeLine("// Client bundles one typed caller per module.")
	g.writeLine("type Client struct {")
	g.indent++
	for _, module := range modules {
		g.writeLine("%s %sClient", exportName(module), exportName(module))
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")

	g.writeLine("// NewClient wires every module caller to one transport.")
	g.writeLine("func NewClient(caller rpc.Caller) *Client {")
	g.indent++
	g.writeLine("return &Client{")
	g.indent++
	for _, module := range modules {
		g.writeLine("%s: %sClient{caller: caller},", exportName(module), exportName(module))
	}
	g.indent--
	g.writeLine("}")
	g.indent--
	g.writeLine("}")

	for _, module := range modules {
		e.writeModuleClient(g, module)
	}
}

// writeModuleClient renders the typed caller of one module.
func (e *Emitter) writeModuleClient(g *generator, module string) {
	name := exportName(module) + "Client"

	g.writeLine("")
	g.writeLine("// %s calls %s module methods remotely.", name, module)
	g.writeLine("type %s struct {", name)
	g.indent++
	g.writeLine("caller rpc.Caller")
	g.indent--
	g.writeLine("}")

	for _, c := range e.set.ByModule[module] {
		e.writeForwarder(g, name, c)
	}
}

// forwarderRepl builds the identifier rewrites a forwarder signature needs:
// the method's own type parameters flatten to any, and local types without
// an alias gain their module qualifier.
func (e *Emitter) forwarderRepl(c *contract.ServiceMethodContract) map[string]string {
	repl := typeParamRepl(c.TypeParams)

	texts := make([]string, 0, len(c.Params)+1)
	for _, p := range c.Params {
		texts = append(texts, p.Type)
	}
	if c.Result != "" {
		texts = append(texts, c.Result)
	}
	for _, text := range texts {
		for _, tok := range typetext.Identifiers(text) {
			if strings.Contains(tok, ".") {
				continue
			}
			if _, shadowed := repl[tok]; shadowed {
				continue
			}
			if module, ok := e.unaliasedHome(tok); ok {
				if repl == nil {
					repl = make(map[string]string)
				}
				repl[tok] = module + "." + tok
			}
		}
	}
	return repl
}

// writeForwarder renders one concrete forwarding method. Forwarders always
// take a context and always return an error: the transport can fail even
// when the remote method cannot.
func (e *Emitter) writeForwarder(g *generator, clientName string, c *contract.ServiceMethodContract) {
	repl := e.forwarderRepl(c)

	params := []string{"ctx context.Context"}
	names := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		name := forwarderParamName(p.Name)
		names = append(names, name)
		params = append(params, name+" "+typetext.ReplaceIdents(p.Type, repl))
	}

	result := ""
	if c.Result != "" {
		result = typetext.ReplaceIdents(c.Result, repl)
	}
	returns := "error"
	if result != "" {
		returns = "(" + result + ", error)"
	}

	g.writeLine("")
	g.writeLine("// %s calls %s.", c.Method, c.Pattern)
	g.writeLine("func (c %s) %s(%s) %s {", clientName, c.Method, strings.Join(params, ", "), returns)
	g.indent++

	payload := "nil"
	switch len(c.Params) {
	case 0:
	case 1:
		payload = names[0]
	default:
		pairs := make([]string, len(c.Params))
		for i, p := range c.Params {
			pairs[i] = `"` + p.Name + `": ` + names[i]
		}
		payload = "rpc.Args{" + strings.Join(pairs, ", ") + "}"
	}

	if result == "" {
		g.writeLine("return c.caller.Call(ctx, %q, %s, nil)", c.Pattern, payload)
	} else {
		out := resultVar(names)
		g.writeLine("var %s %s", out, result)
		g.writeLine("err := c.caller.Call(ctx, %q, %s, &%s)", c.Pattern, payload, out)
		g.writeLine("return %s, err", out)
	}

	g.indent--
	g.writeLine("}")
}

// forwarderParamName keeps generated parameter names clear of the context
// parameter every forwarder declares.
func forwarderParamName(name string) string {
	if name == "ctx" {
		return "ctxArg"
	}
	return name
}

// resultVar picks a result variable name that no parameter shadows.
func resultVar(params []string) string {
	name := "out"
	for taken(params, name) {
		name += "_"
	}
	return name
}

func taken(params []string, name string) bool {
	for _, p := range params {
		if p == name {
			return true
		}
	}
	return false
}

// exportName turns a module name into an exported Go identifier:
// user_accounts becomes UserAccounts.
func exportName(module string) string {
	parts := strings.Split(module, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}

// sortedModules returns the module names in sorted order.
func (e *Emitter) sortedModules() []string {
	modules := make([]string, len(e.set.Modules))
	copy(modules, e.set.Modules)
	sort.Strings(modules)
	return modules
}

// sortedContracts returns every contract sorted by pattern.
func (e *Emitter) sortedContracts() []*contract.ServiceMethodContract {
	var all []*contract.ServiceMethodContract
	for _, module := range e.set.Modules {
		all = append(all, e.set.ByModule[module]...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Pattern < all[j].Pattern })
	return all
}
