package emit

import (
	"sort"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/typetext"
)

// moduleFile renders one module's declaration package: its type closure in
// dependency order, the contract interface its service implements, and the
// codec tables of the types it declares.
func (e *Emitter) moduleFile(res *contract.Resolution) []byte {
	g := newGenerator()
	contracts := e.set.ByModule[res.Module]

	g.writeLine(header)
	g.writeLine("")
	g.writeLine("// Package %s holds the remote contract of the %s module.", res.Module, res.Module)
	g.writeLine("package %s", res.Module)
	g.writeLine("")

	for _, c := range contracts {
		if c.HasContext {
			g.addImport("context")
			break
		}
	}
	for _, rec := range res.External {
		g.addImport(rec.Package)
	}
	g.addImport(runtimeImport)
	g.writeImports()

	enums, others := splitEnums(res.Ordered)
	for _, def := range enums {
		writeTypeDef(g, def)
	}
	for _, def := range others {
		writeTypeDef(g, def)
	}

	writeContractInterface(g, res.Module, contracts)
	e.writeCodecTable(g, "Codecs maps emitted type names to their field codec tables.",
		"Codecs", moduleOwners(res, e.index.Codecs))

	return g.bytes()
}

// splitEnums partitions ordered definitions into enums and the rest, both
// keeping their relative order. Enums lead the file so their values are in
// scope for everything below.
func splitEnums(ordered []*contract.TypeDefinition) (enums, others []*contract.TypeDefinition) {
	for _, def := range ordered {
		if def.Kind == contract.KindEnum {
			enums = append(enums, def)
		} else {
			others = append(others, def)
		}
	}
	return enums, others
}

func writeTypeDef(g *generator, def *contract.TypeDefinition) {
	g.writeDoc(def.Doc)
	g.writeBlock(def.Source)
	g.writeLine("")
}

// writeContractInterface renders the interface a module implementation must
// satisfy. Receiver type parameters cannot survive on interface methods, so
// they flatten to any.
func writeContractInterface(g *generator, module string, contracts []*contract.ServiceMethodContract) {
	g.writeLine("// Contract is implemented by the %s service.", module)
	g.writeLine("type Contract interface {")
	g.indent++
	for i, c := range contracts {
		if i > 0 {
			g.writeLine("")
		}
		g.writeDoc(c.Doc)
		g.writeLine("%s%s", c.Method, methodSignature(c))
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")
}

// methodSignature renders "(params) results" for a contract method, with
// type parameters replaced by any.
func methodSignature(c *contract.ServiceMethodContract) string {
	repl := typeParamRepl(c.TypeParams)

	var params []string
	if c.HasContext {
		params = append(params, "ctx context.Context")
	}
	for _, p := range c.Params {
		params = append(params, p.Name+" "+typetext.ReplaceIdents(p.Type, repl))
	}
	sig := "(" + strings.Join(params, ", ") + ")"

	result := ""
	if c.Result != "" {
		result = typetext.ReplaceIdents(c.Result, repl)
	}
	switch {
	case result != "" && c.HasError:
		sig += " (" + result + ", error)"
	case result != "":
		sig += " " + result
	case c.HasError:
		sig += " error"
	}
	return sig
}

func typeParamRepl(params []contract.TypeParam) map[string]string {
	if len(params) == 0 {
		return nil
	}
	repl := make(map[string]string, len(params))
	for _, p := range params {
		repl[p.Name] = "any"
	}
	return repl
}

// moduleOwners returns the codec-bearing type names this module emits,
// sorted.
func moduleOwners(res *contract.Resolution, codecs contract.CodecTable) []string {
	var owners []string
	for _, def := range res.Ordered {
		if len(codecs[def.Name]) > 0 {
			owners = append(owners, def.Name)
		}
	}
	sort.Strings(owners)
	return owners
}

// writeCodecTable renders a codec table variable with sorted owners and
// sorted fields.
func (e *Emitter) writeCodecTable(g *generator, doc, name string, owners []string) {
	g.writeLine("// %s", doc)
	if len(owners) == 0 {
		g.writeLine("var %s = rpc.CodecTable{}", name)
		return
	}

	g.writeLine("var %s = rpc.CodecTable{", name)
	g.indent++
	for _, owner := range owners {
		g.writeLine("%q: {", owner)
		g.indent++
		fields := e.index.Codecs[owner]
		for _, field := range sortedKeys(fields) {
			g.writeLine("%q: %q,", field, fields[field])
		}
		g.indent--
		g.writeLine("},")
	}
	g.indent--
	g.writeLine("}")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
