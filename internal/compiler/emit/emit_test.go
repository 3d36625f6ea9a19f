package emit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/discovery"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/extract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/resolve"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
)

const shopManifest = `module example.com/shop

go 1.23

require github.com/google/uuid v1.6.0
`

var shopFixture = map[string]string{
	"orders/service.go": `package orders

import (
	"context"

	"github.com/google/uuid"
)

// OrderService manages orders.
//rpc:controller
type OrderService struct{}

// Create validates and stores a new order.
//rpc:method
func (s *OrderService) Create(ctx context.Context, req CreateOrder) (Order, error) {
	return Order{}, nil
}

//rpc:method
func (s *OrderService) Find(ctx context.Context, id uuid.UUID) (*Order, error) {
	return nil, nil
}
`,
	"orders/types.go": `package orders

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates order states.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Order is a stored order.
type Order struct {
	ID        uuid.UUID ` + "`json:\"id\"`" + `
	Status    Status    ` + "`json:\"status\"`" + `
	CreatedAt time.Time ` + "`json:\"created_at\"`" + `
}

type CreateOrder struct {
	Total int64 ` + "`json:\"total\"`" + `
}
`,
	"billing/service.go": `package billing

import "context"

//rpc:controller
type BillingService struct{}

//rpc:method
func (s *BillingService) Total(ctx context.Context, orderID string) (Money, error) {
	return Money{}, nil
}
`,
	"billing/types.go": `package billing

type Money struct {
	Cents int64 ` + "`json:\"cents\"`" + `
}
`,
}

func writeShop(t *testing.T) string {
	t.Helper()
	return writeTree(t, shopFixture)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte(shopManifest), 0o644); err != nil {
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
	return root
}

func runEmit(t *testing.T, root string) (*Result, *rpcerrors.List) {
	t.Helper()
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
	extract.New(project, set, index, versions, diags).Extract()
	resolutions := resolve.New(set, index, diags).Resolve()

	result, err := New(set, index, resolutions, diags, filepath.Join(root, "gen", "rpc"), "rpcgen").Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	return result, diags
}

func readArtifact(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "gen", "rpc", rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestEmitModuleFile(t *testing.T) {
	root := writeShop(t)
	result, _ := runEmit(t, root)

	if result.ImportBase != "example.com/shop/gen/rpc" {
		t.Errorf("ImportBase = %q", result.ImportBase)
	}
	if result.ModuleCount != 2 || result.ContractCount != 3 {
		t.Errorf("counts = %d modules, %d contracts", result.ModuleCount, result.ContractCount)
	}

	content := readArtifact(t, root, filepath.Join("order", "order.rpc.gen.go"))

	if !strings.HasPrefix(content, "// Code generated by rpckit. DO NOT EDIT.\n") {
		t.Error("missing generated header")
	}
	if !strings.Contains(content, "package order\n") {
		t.Error("missing package clause")
	}
	for _, want := range []string{
		`"context"`,
		`"github.com/google/uuid"`,
		`"github.com/mm-zacharydavison/rpckit/pkg/rpc"`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("missing import %s", want)
		}
	}

	enumAt := strings.Index(content, "type Status string")
	structAt := strings.Index(content, "type Order struct {")
	if enumAt < 0 || structAt < 0 || enumAt > structAt {
		t.Errorf("enum must precede structs (enum %d, struct %d)", enumAt, structAt)
	}

	if !strings.Contains(content, "CreatedAt string") {
		t.Error("timestamp field not rewritten in artifact")
	}
	if !strings.Contains(content, "Create(ctx context.Context, req CreateOrder) (Order, error)") {
		t.Errorf("contract interface method missing:\n%s", content)
	}
	if !strings.Contains(content, "Find(ctx context.Context, id uuid.UUID) (*Order, error)") {
		t.Error("second interface method missing")
	}
	if !strings.Contains(content, "var Codecs = rpc.CodecTable{") {
		t.Error("codec table must use the runtime table type")
	}
	if !strings.Contains(content, `"created_at": "timestamp",`) {
		t.Error("codec table entry missing")
	}
}

func TestEmitAggregateFile(t *testing.T) {
	root := writeShop(t)
	runEmit(t, root)

	content := readArtifact(t, root, "all.rpc.gen.go")

	for _, want := range []string{
		"package rpcgen",
		`"example.com/shop/gen/rpc/billing"`,
		`"example.com/shop/gen/rpc/order"`,
		`"github.com/mm-zacharydavison/rpckit/pkg/rpc"`,
		"Order = order.Order",
		"Money = billing.Money",
		"StatusOpen = order.StatusOpen",
		`"order.Create": {`,
		`{Name: "req", Type: "CreateOrder"},`,
		`Result: "Order",`,
		"func (c OrderClient) Create(ctx context.Context, req CreateOrder) (Order, error) {",
		`err := c.caller.Call(ctx, "order.Create", req, &out)`,
		"func (c BillingClient) Total(ctx context.Context, orderID string) (Money, error) {",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("aggregate missing %q", want)
		}
	}

	// Only order patterns reach a codec-bearing type.
	codecsAt := strings.Index(content, "var PatternCodecs")
	if codecsAt < 0 {
		t.Fatal("PatternCodecs missing")
	}
	section := content[codecsAt:]
	if end := strings.Index(section, "\n}\n"); end >= 0 {
		section = section[:end]
	}
	if !strings.Contains(section, `"order.Create"`) || !strings.Contains(section, `Result: "@Order"`) {
		t.Errorf("order.Create codec involvement missing:\n%s", section)
	}
	if strings.Contains(section, `"billing.Total"`) {
		t.Errorf("billing.Total involves no codecs:\n%s", section)
	}

	// Patterns are sorted in the signature map.
	billingAt := strings.Index(content, `"billing.Total": {`)
	orderAt := strings.Index(content, `"order.Create": {`)
	if billingAt < 0 || orderAt < 0 || billingAt > orderAt {
		t.Error("signature map not sorted by pattern")
	}
}

func TestEmitManifestUpdate(t *testing.T) {
	root := writeShop(t)
	result, diags := runEmit(t, root)

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read go.mod: %v", err)
	}
	manifest := string(data)

	if !strings.Contains(manifest, runtimeModule) {
		t.Errorf("runtime module not added:\n%s", manifest)
	}
	if !result.TidyNeeded {
		t.Error("TidyNeeded = false, want true for placeholder version")
	}
	if len(result.RequiresAdded) != 1 || !strings.HasPrefix(result.RequiresAdded[0], runtimeModule) {
		t.Errorf("RequiresAdded = %v", result.RequiresAdded)
	}

	// uuid was already required; it must not be duplicated.
	if strings.Count(manifest, "github.com/google/uuid") != 1 {
		t.Errorf("uuid require duplicated:\n%s", manifest)
	}

	found := false
	for _, d := range diags.Warnings() {
		if d.Code == rpcerrors.CodeVersionUnknown {
			found = true
		}
	}
	if !found {
		t.Error("missing placeholder version warning")
	}
}

func TestEmitAliasedImportBindsQualifier(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keys/service.go": `package keys

import (
	"context"

	id "github.com/google/uuid"
)

// KeyService issues keys.
//rpc:controller
type KeyService struct{}

//rpc:method
func (s *KeyService) Issue(ctx context.Context, name string) (Key, error) {
	return Key{}, nil
}

//rpc:method
func (s *KeyService) Revoke(ctx context.Context, keyID id.UUID) error {
	return nil
}
`,
		"keys/types.go": `package keys

import id "github.com/google/uuid"

// Key is an issued key.
type Key struct {
	ID id.UUID ` + "`json:\"id\"`" + `
}
`,
	})
	runEmit(t, root)

	// Artifacts import external packages by bare path, so every qualifier
	// must be the package's default name, not the source file's alias.
	module := readArtifact(t, root, filepath.Join("key", "key.rpc.gen.go"))
	if !strings.Contains(module, `"github.com/google/uuid"`) {
		t.Errorf("uuid import missing:\n%s", module)
	}
	if !strings.Contains(module, "ID uuid.UUID") {
		t.Errorf("field qualifier not normalized:\n%s", module)
	}
	if !strings.Contains(module, "Revoke(ctx context.Context, keyID uuid.UUID) error") {
		t.Errorf("interface method qualifier not normalized:\n%s", module)
	}
	if strings.Contains(module, " id.UUID") {
		t.Errorf("source alias leaked into module artifact:\n%s", module)
	}

	aggregate := readArtifact(t, root, "all.rpc.gen.go")
	if !strings.Contains(aggregate, `"github.com/google/uuid"`) {
		t.Errorf("uuid import missing from aggregate:\n%s", aggregate)
	}
	if !strings.Contains(aggregate, "func (c KeyClient) Revoke(ctx context.Context, keyID uuid.UUID) error {") {
		t.Errorf("forwarder qualifier not normalized:\n%s", aggregate)
	}
	if strings.Contains(aggregate, " id.UUID") {
		t.Errorf("source alias leaked into aggregate artifact:\n%s", aggregate)
	}
}

func TestEmitReservedNameNotAliased(t *testing.T) {
	root := writeTree(t, map[string]string{
		"api/service.go": `package api

import "context"

//rpc:controller
type ApiService struct{}

//rpc:method
func (s *ApiService) Connect(ctx context.Context, addr string) (Client, error) {
	return Client{}, nil
}
`,
		"api/types.go": `package api

// Client describes a connected peer.
type Client struct {
	Addr string ` + "`json:\"addr\"`" + `
}
`,
	})
	_, diags := runEmit(t, root)

	found := false
	for _, d := range diags.Warnings() {
		if d.Code == rpcerrors.CodeNameConflict {
			found = true
		}
	}
	if !found {
		t.Errorf("missing %s warning for reserved name, got %v", rpcerrors.CodeNameConflict, diags.All())
	}

	aggregate := readArtifact(t, root, "all.rpc.gen.go")
	if strings.Contains(aggregate, "Client = api.Client") {
		t.Errorf("reserved name must not be aliased:\n%s", aggregate)
	}
	// The forwarder cannot use the bare name: that would bind the
	// aggregate's own Client struct.
	if !strings.Contains(aggregate, "func (c ApiClient) Connect(ctx context.Context, addr string) (api.Client, error) {") {
		t.Errorf("forwarder must module-qualify the colliding type:\n%s", aggregate)
	}
	if !strings.Contains(aggregate, `"example.com/shop/gen/rpc/api"`) {
		t.Errorf("api subpackage import missing:\n%s", aggregate)
	}
}

func TestEmitDeterministic(t *testing.T) {
	root := writeShop(t)
	runEmit(t, root)

	artifacts := []string{
		filepath.Join("order", "order.rpc.gen.go"),
		filepath.Join("billing", "billing.rpc.gen.go"),
		"all.rpc.gen.go",
	}
	first := make(map[string][]byte)
	for _, rel := range artifacts {
		first[rel] = []byte(readArtifact(t, root, rel))
	}

	// A second full run scans a tree that now contains the artifacts; the
	// generated header keeps them out of discovery, and emission must
	// reproduce every byte.
	result, _ := runEmit(t, root)
	if len(result.RequiresAdded) != 0 {
		t.Errorf("second run added requires: %v", result.RequiresAdded)
	}
	if result.ContractCount != 3 {
		t.Errorf("second run ContractCount = %d, want 3 (artifacts must not be rescanned)", result.ContractCount)
	}
	for _, rel := range artifacts {
		if !bytes.Equal(first[rel], []byte(readArtifact(t, root, rel))) {
			t.Errorf("%s differs between runs", rel)
		}
	}
}
