package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/discovery"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
)

const testManifest = `module example.com/shop

go 1.23

require github.com/google/uuid v1.6.0
`

// extractAll loads the fixture files, runs discovery for the directory
// attribution side effects, then runs extraction.
func extractAll(t *testing.T, files map[string]string) (*contract.Index, *rpcerrors.List) {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte(testManifest), 0o644); err != nil {
		t.Fatalf("write go.mod: %v", err)
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	diags := &rpcerrors.List{}
	roots, err := source.ExpandRoots(root, []string{"."})
	if err != nil {
		t.Fatalf("ExpandRoots: %v", err)
	}
	project, err := source.NewLoader(0, diags).Load(roots)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	index := contract.NewIndex()
	versions := source.NewVersionResolver()
	set := discovery.New(project, index, versions, diags).Discover()
	New(project, set, index, versions, diags).Extract()
	return index, diags
}

func mustLookup(t *testing.T, index *contract.Index, name string) *contract.TypeDefinition {
	t.Helper()
	def, ok := index.Lookup(name)
	if !ok {
		t.Fatalf("type %s not extracted; have %v", name, index.Order)
	}
	return def
}

func TestExtractTimestampRewrite(t *testing.T) {
	index, diags := extractAll(t, map[string]string{
		"orders/types.go": `package orders

import "time"

// Order is a stored order.
type Order struct {
	ID        string     ` + "`json:\"id\"`" + `
	CreatedAt time.Time  ` + "`json:\"created_at\"`" + `
	PaidAt    *time.Time ` + "`json:\"paid_at,omitempty\"`" + `
	internal  int
}
`,
	})

	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}

	def := mustLookup(t, index, "Order")
	if def.Kind != contract.KindStruct {
		t.Errorf("Kind = %s, want struct", def.Kind)
	}
	if def.Doc != "Order is a stored order." {
		t.Errorf("Doc = %q", def.Doc)
	}
	if strings.Contains(def.Source, "time.Time") {
		t.Errorf("timestamp not rewritten:\n%s", def.Source)
	}
	if !strings.Contains(def.Source, "CreatedAt string") {
		t.Errorf("value timestamp should become string:\n%s", def.Source)
	}
	if !strings.Contains(def.Source, "PaidAt *string") {
		t.Errorf("pointer timestamp should become *string:\n%s", def.Source)
	}
	if strings.Contains(def.Source, "internal") {
		t.Errorf("unexported field leaked:\n%s", def.Source)
	}

	codecs := index.Codecs["Order"]
	if codecs["created_at"] != contract.CodecTimestamp {
		t.Errorf("created_at codec = %q, want %s", codecs["created_at"], contract.CodecTimestamp)
	}
	if codecs["paid_at"] != contract.CodecTimestamp {
		t.Errorf("paid_at codec = %q, want %s", codecs["paid_at"], contract.CodecTimestamp)
	}
	if _, ok := index.External["time.Time"]; ok {
		t.Error("rewritten timestamp fields must not attribute the time package")
	}
}

func TestExtractNestedCodecPropagation(t *testing.T) {
	index, _ := extractAll(t, map[string]string{
		"orders/types.go": `package orders

import "time"

type Order struct {
	CreatedAt time.Time ` + "`json:\"created_at\"`" + `
}

type Invoice struct {
	Order Order ` + "`json:\"order\"`" + `
}

type Shipment struct {
	Invoices []Invoice ` + "`json:\"invoices\"`" + `
}

type Note struct {
	Body string ` + "`json:\"body\"`" + `
}
`,
	})

	if got := index.Codecs["Invoice"]["order"]; got != "@Order" {
		t.Errorf("Invoice.order codec = %q, want @Order", got)
	}
	if got := index.Codecs["Shipment"]["invoices"]; got != "@Invoice" {
		t.Errorf("Shipment.invoices codec = %q, want @Invoice", got)
	}
	if _, ok := index.Codecs["Note"]; ok {
		t.Error("Note has no timestamp reach and should carry no codec table")
	}
}

func TestExtractEnum(t *testing.T) {
	index, _ := extractAll(t, map[string]string{
		"orders/status.go": `package orders

// Status enumerates order states.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)
`,
	})

	def := mustLookup(t, index, "Status")
	if def.Kind != contract.KindEnum {
		t.Fatalf("Kind = %s, want enum", def.Kind)
	}
	for _, want := range []string{
		"type Status string",
		"const (",
		`StatusOpen Status = "open"`,
		`StatusClosed Status = "closed"`,
	} {
		if !strings.Contains(def.Source, want) {
			t.Errorf("Source missing %q:\n%s", want, def.Source)
		}
	}
}

func TestExtractInterfaceAndAlias(t *testing.T) {
	index, _ := extractAll(t, map[string]string{
		"orders/types.go": `package orders

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Find returns the order.
	Find(ctx context.Context, id string) (*Order, error)
}

type UserID = uuid.UUID

type Meters float64

type Order struct {
	ID string ` + "`json:\"id\"`" + `
}
`,
	})

	repo := mustLookup(t, index, "Repository")
	if repo.Kind != contract.KindInterface {
		t.Errorf("Repository Kind = %s, want interface", repo.Kind)
	}
	if !strings.Contains(repo.Source, "Find(ctx context.Context, id string) (*Order, error)") {
		t.Errorf("method not rendered:\n%s", repo.Source)
	}

	alias := mustLookup(t, index, "UserID")
	if alias.Kind != contract.KindAlias || alias.Source != "type UserID = uuid.UUID" {
		t.Errorf("alias = %s %q", alias.Kind, alias.Source)
	}
	if rec, ok := index.External["uuid.UUID"]; !ok || rec.Version != "v1.6.0" {
		t.Errorf("uuid.UUID attribution = %+v, %v", rec, ok)
	}

	meters := mustLookup(t, index, "Meters")
	if meters.Kind != contract.KindAlias || meters.Source != "type Meters float64" {
		t.Errorf("defined type = %s %q", meters.Kind, meters.Source)
	}
}

func TestExtractSkipsNonContractTypes(t *testing.T) {
	index, _ := extractAll(t, map[string]string{
		"orders/service.go": `package orders

//rpc:controller
type OrderService struct {
	DB string
}

//rpc:method
func (s *OrderService) Ping() {}

type opaque struct {
	Hidden string
}

type Config struct {
	timeout int
	retries int
}
`,
	})

	if _, ok := index.Lookup("OrderService"); ok {
		t.Error("controller type must not be extracted")
	}
	if _, ok := index.Lookup("opaque"); ok {
		t.Error("unexported type must not be extracted")
	}
	if _, ok := index.Lookup("Config"); ok {
		t.Error("struct without exported fields must not be extracted")
	}
}

func TestExtractNameConflict(t *testing.T) {
	index, diags := extractAll(t, map[string]string{
		"a/types.go": `package a

type Meta struct {
	A string ` + "`json:\"a\"`" + `
}
`,
		"b/types.go": `package b

type Meta struct {
	B int ` + "`json:\"b\"`" + `
}
`,
	})

	found := false
	for _, d := range diags.Warnings() {
		if d.Code == rpcerrors.CodeNameConflict {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing %s warning, got %v", rpcerrors.CodeNameConflict, diags.All())
	}

	def := mustLookup(t, index, "Meta")
	if !strings.Contains(def.Source, "A string") {
		t.Errorf("first definition should win:\n%s", def.Source)
	}
}

func TestExtractAliasedExternalImport(t *testing.T) {
	index, diags := extractAll(t, map[string]string{
		"orders/types.go": `package orders

import id "github.com/google/uuid"

// Order is a stored order.
type Order struct {
	Key id.UUID ` + "`json:\"key\"`" + `
}
`,
	})

	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}

	// The source alias must not survive: artifacts import the package by
	// path, which binds its default name.
	def := mustLookup(t, index, "Order")
	if !strings.Contains(def.Source, "Key uuid.UUID") {
		t.Errorf("aliased qualifier not normalized:\n%s", def.Source)
	}
	if strings.Contains(def.Source, " id.UUID") {
		t.Errorf("source alias leaked into rendered text:\n%s", def.Source)
	}

	rec, ok := index.External["uuid.UUID"]
	if !ok {
		t.Fatalf("uuid.UUID not attributed; have %v", index.External)
	}
	if rec.Package != "github.com/google/uuid" {
		t.Errorf("Package = %q", rec.Package)
	}
}

func TestExtractModuleAttribution(t *testing.T) {
	// The controller sits deep enough that its parent is not a conventional
	// source root, so no ancestor directory inherits the module.
	index, _ := extractAll(t, map[string]string{
		"internal/services/orders/service.go": `package orders

//rpc:controller
type OrderService struct{}

//rpc:method
func (s *OrderService) Ping() {}
`,
		"internal/services/orders/types.go": `package orders

type Order struct {
	ID string ` + "`json:\"id\"`" + `
}
`,
		"internal/models/user.go": `package models

type Stray struct {
	X string ` + "`json:\"x\"`" + `
}
`,
	})

	if def := mustLookup(t, index, "Order"); def.Module != "order" {
		t.Errorf("Order module = %q, want order", def.Module)
	}
	if def := mustLookup(t, index, "Stray"); def.Module != contract.ModuleUnknown {
		t.Errorf("Stray module = %q, want %s", def.Module, contract.ModuleUnknown)
	}
}

func TestExtractGenericStruct(t *testing.T) {
	index, _ := extractAll(t, map[string]string{
		"shared/page.go": `package shared

type Page[T any] struct {
	Items []T ` + "`json:\"items\"`" + `
	Total int ` + "`json:\"total\"`" + `
}
`,
	})

	def := mustLookup(t, index, "Page")
	if len(def.TypeParams) != 1 || def.TypeParams[0].Name != "T" || def.TypeParams[0].Constraint != "any" {
		t.Errorf("TypeParams = %+v", def.TypeParams)
	}
	if !strings.Contains(def.Source, "type Page[T any] struct {") {
		t.Errorf("generic head not rendered:\n%s", def.Source)
	}
}
