// Package contract defines the data model shared by the contract compiler
// passes: discovered service methods, extracted type definitions, external
// import records, and codec metadata. Values are built up pass by pass and
// are immutable once the pass that created them finishes.
package contract

import (
	"sort"
	"strings"
)

// TypeKind categorizes an extracted type declaration.
type TypeKind string

const (
	// KindInterface is a Go interface declaration.
	KindInterface TypeKind = "interface"
	// KindAlias is a type alias or a non-struct defined type.
	KindAlias TypeKind = "alias"
	// KindEnum is a defined type with an accompanying const block.
	KindEnum TypeKind = "enum"
	// KindStruct is a DTO-shaped struct (at least one exported field).
	KindStruct TypeKind = "struct"
)

// CodecTimestamp is the codec id recorded for fields whose declared type is
// time.Time. The emitted wire type for such fields is string (RFC 3339).
const CodecTimestamp = "timestamp"

// ModuleUnknown is the attribution used for types whose directory could not
// be traced back to any controller's module.
const ModuleUnknown = "unknown"

// Param is one named parameter of a service method.
type Param struct {
	Name string
	Type string // cleaned type text (local qualifiers stripped)
}

// TypeParam is a generic type parameter with its constraint text.
type TypeParam struct {
	Name       string
	Constraint string
}

// ServiceMethodContract describes one remote-callable method discovered in a
// controller. One contract exists per annotated method; its uniqueness key is
// Pattern within a module.
type ServiceMethodContract struct {
	Pattern    string      // "module.Method"
	Module     string      // resolved module name
	Method     string      // method name, verbatim
	Params     []Param     // context parameter excluded
	Result     string      // cleaned result type text, "" when none
	HasContext bool        // method takes ctx context.Context first
	HasError   bool        // method returns a trailing error
	TypeParams []TypeParam // receiver type parameters
	Doc        string      // doc comment with directives stripped
	File       string      // origin file path
}

// TypeDefinition is one extracted type declaration. Identity is Name; names
// are assumed globally unique across scanned source, and conflicting
// redefinitions are surfaced as warnings by the extractor.
type TypeDefinition struct {
	Name       string
	Kind       TypeKind
	Source     string // re-exportable declaration text, codec-rewritten
	Module     string // origin module, or "unknown"
	Doc        string
	TypeParams []TypeParam
	ConstNames []string // exported const names, for enums
	File       string
}

// Generic reports whether the definition declares type parameters.
func (d *TypeDefinition) Generic() bool {
	return len(d.TypeParams) > 0
}

// ExternalImportRecord attributes a qualified type name to the package that
// exports it. Module and Version come from the nearest manifest's require
// table and are best-effort: both are "" for the standard library, and
// Version is "" when no manifest resolved the package.
type ExternalImportRecord struct {
	TypeName string // qualified, e.g. "uuid.UUID"
	Package  string // import path, e.g. "github.com/google/uuid"
	Module   string // providing module path, when resolved
	Version  string
}

// Stdlib reports whether the record's package is part of the standard
// library. Mirrors the usual heuristic: stdlib import paths have no dot in
// their first segment.
func (r ExternalImportRecord) Stdlib() bool {
	first := r.Package
	if i := strings.Index(first, "/"); i >= 0 {
		first = first[:i]
	}
	return !strings.Contains(first, ".")
}

// CodecTable maps owner type name -> field name -> codec id. A codec id is
// either a primitive codec name (CodecTimestamp) or a nested reference of the
// form "@OtherType", meaning the field decodes using OtherType's own table.
type CodecTable map[string]map[string]string

// Add records a codec entry, allocating the owner's field map on first use.
func (t CodecTable) Add(owner, field, codec string) {
	fields, ok := t[owner]
	if !ok {
		fields = make(map[string]string)
		t[owner] = fields
	}
	fields[field] = codec
}

// Owners returns the owner type names in sorted order.
func (t CodecTable) Owners() []string {
	owners := make([]string, 0, len(t))
	for owner := range t {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// ContractSet is the output of the discovery pass: every discovered contract
// grouped by module, plus the directory-to-module attribution map used by the
// extractor to tag type-only files.
type ContractSet struct {
	Modules    []string                            // first-seen order
	ByModule   map[string][]*ServiceMethodContract // module -> contracts, first-seen order
	DirModules map[string]string                   // directory -> module
}

// NewContractSet returns an empty contract set.
func NewContractSet() *ContractSet {
	return &ContractSet{
		ByModule:   make(map[string][]*ServiceMethodContract),
		DirModules: make(map[string]string),
	}
}

// Add registers a contract under its module. A later contract with the same
// pattern replaces the earlier one; the second return value reports whether a
// replacement happened so callers can surface the conflict.
func (s *ContractSet) Add(c *ServiceMethodContract) (replaced *ServiceMethodContract) {
	contracts, seen := s.ByModule[c.Module]
	if !seen {
		s.Modules = append(s.Modules, c.Module)
	}
	for i, existing := range contracts {
		if existing.Pattern == c.Pattern {
			contracts[i] = c
			s.ByModule[c.Module] = contracts
			return existing
		}
	}
	s.ByModule[c.Module] = append(contracts, c)
	return nil
}

// MapDir records a directory-to-module association. The first association for
// a directory wins so that repeated runs stay deterministic.
func (s *ContractSet) MapDir(dir, module string) {
	if _, ok := s.DirModules[dir]; !ok {
		s.DirModules[dir] = module
	}
}

// Len returns the total number of contracts across all modules.
func (s *ContractSet) Len() int {
	n := 0
	for _, contracts := range s.ByModule {
		n += len(contracts)
	}
	return n
}

// Index is the output of the extraction pass: every type definition keyed by
// name (with first-seen ordering preserved), external import attribution, and
// the codec tables.
type Index struct {
	Types    map[string]*TypeDefinition
	Order    []string // type names in first-seen order
	External map[string]ExternalImportRecord
	Codecs   CodecTable
}

// NewIndex returns an empty extraction index.
func NewIndex() *Index {
	return &Index{
		Types:    make(map[string]*TypeDefinition),
		External: make(map[string]ExternalImportRecord),
		Codecs:   make(CodecTable),
	}
}

// Lookup returns the type definition for a bare name, if extracted.
func (x *Index) Lookup(name string) (*TypeDefinition, bool) {
	def, ok := x.Types[name]
	return def, ok
}

// AddType records a definition unless the name is already taken. It returns
// the previously recorded definition when the name collides with a different
// source text, and nil otherwise. The first definition always wins.
func (x *Index) AddType(def *TypeDefinition) (conflict *TypeDefinition) {
	existing, ok := x.Types[def.Name]
	if !ok {
		x.Types[def.Name] = def
		x.Order = append(x.Order, def.Name)
		return nil
	}
	if existing.Source != def.Source {
		return existing
	}
	return nil
}

// AddExternal records an external import attribution. Last writer wins for a
// given qualified name, mirroring the per-file nature of import statements.
// When the name was previously attributed to a different package, the
// superseded record is returned so the caller can surface the collision.
func (x *Index) AddExternal(rec ExternalImportRecord) (ExternalImportRecord, bool) {
	existing, ok := x.External[rec.TypeName]
	x.External[rec.TypeName] = rec
	if ok && existing.Package != rec.Package {
		return existing, true
	}
	return ExternalImportRecord{}, false
}

// InOrder returns all type definitions in first-seen order.
func (x *Index) InOrder() []*TypeDefinition {
	defs := make([]*TypeDefinition, 0, len(x.Order))
	for _, name := range x.Order {
		defs = append(defs, x.Types[name])
	}
	return defs
}

// Resolution is the per-module output of the dependency resolver.
type Resolution struct {
	Module   string
	Ordered  []*TypeDefinition      // locally-defined closure in emission order
	External []ExternalImportRecord // externally imported closure, sorted by type name
	Cyclic   []string               // names involved in a detected cycle, discovery order
}

// Uses reports whether the resolution references the given external package
// import path.
func (r *Resolution) Uses(pkg string) bool {
	for _, rec := range r.External {
		if rec.Package == pkg {
			return true
		}
	}
	return false
}
