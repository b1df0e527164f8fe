package sandbox

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/streamvest/pluginhost/pkg/capability"
)

// ProviderType declares how the plugin's source is interpreted
type ProviderType string

const (
	TypeModule ProviderType = "module"
	TypeScript ProviderType = "script"
)

// Provider is the resolved plugin artifact the sandbox will run
type Provider struct {
	ID     string
	Source string
	Type   ProviderType
}

// Input is everything needed to generate one sandbox descriptor
type Input struct {
	Port       int
	Provider   Provider
	TenantID   string
	StreamID   *int64
	HostRPCURL string
	Bindings   []capability.Binding
}

// implementation shims are bundled with their dependencies inlined;
// binding shims stay unbundled so they can resolve the reserved
// host-internal import scheme at load time. The set is shared verbatim
// across every sandbox, independent of which bindings get wired.
var (
	implShims = map[string]string{
		"host-internal:storage-impl": "storage-impl.js",
		"host-internal:log-impl":     "log-impl.js",
	}
	bindingShims = map[string]string{
		capability.StorageBindingModule: "storage-binding.js",
		capability.LogBindingModule:     "log-binding.js",
	}
)

// Generator produces isolation-runtime descriptors. Pure apart from
// reading the shim toolchain: identical inputs yield byte-identical
// output, which the pool's reuse-key derivation depends on.
type Generator struct {
	bundler    Bundler
	shimDir    string
	compatDate string
	logger     zerolog.Logger
}

// NewGenerator creates a descriptor generator
func NewGenerator(bundler Bundler, shimDir, compatDate string, logger zerolog.Logger) *Generator {
	return &Generator{
		bundler:    bundler,
		shimDir:    shimDir,
		compatDate: compatDate,
		logger:     logger.With().Str("component", "sandbox-generator").Logger(),
	}
}

// Generate validates the input and renders the descriptor text
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	hostAddr, err := validateInput(in)
	if err != nil {
		return "", err
	}

	extensionModules, err := g.extensionModules(ctx)
	if err != nil {
		return "", err
	}

	doc := NewDocument()

	doc.AddConst("config", "Workerd.Config", NewStruct().
		Set("services", List{
			NewStruct().
				Set("name", Text("plugin")).
				Set("worker", Ref("pluginWorker")),
			NewStruct().
				Set("name", Text("host")).
				Set("external", NewStruct().Set("address", Text(hostAddr))),
		}).
		Set("sockets", List{
			NewStruct().
				Set("name", Text("http")).
				Set("address", Text(fmt.Sprintf("127.0.0.1:%d", in.Port))).
				Set("http", NewStruct()).
				Set("service", Text("plugin")),
		}).
		Set("extensions", List{Ref("hostExtension")}))

	doc.AddConst("pluginWorker", "Workerd.Worker", g.workerStruct(in))
	doc.AddConst("hostExtension", "Workerd.Extension", NewStruct().
		Set("modules", extensionModules))

	text := doc.Serialize()

	g.logger.Debug().
		Str("providerId", in.Provider.ID).
		Int("port", in.Port).
		Int("bindings", len(in.Bindings)).
		Int("bytes", len(text)).
		Msg("Generated sandbox descriptor")

	return text, nil
}

// validateInput fails fast, before any process-level resource is touched
func validateInput(in Input) (string, error) {
	if in.Port <= 0 || in.Port > 65535 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPort, in.Port)
	}
	if in.Provider.ID == "" || in.Provider.Source == "" {
		return "", ErrInvalidProvider
	}
	switch in.Provider.Type {
	case TypeModule, TypeScript:
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProviderType, in.Provider.Type)
	}

	u, err := url.Parse(in.HostRPCURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidHostRPCURL, in.HostRPCURL)
	}
	return u.Host, nil
}

// workerStruct builds the service definition that binds the allocated port
// to the plugin's entrypoint
func (g *Generator) workerStruct(in Input) *Struct {
	worker := NewStruct()

	switch in.Provider.Type {
	case TypeScript:
		worker.Set("serviceWorkerScript", Text(in.Provider.Source))
	default:
		worker.Set("modules", List{
			NewStruct().
				Set("name", Text("plugin.js")).
				Set("esModule", Text(in.Provider.Source)),
		})
	}

	worker.Set("compatibilityDate", Text(g.compatDate))

	bindings := make(List, 0, len(in.Bindings))
	for _, b := range in.Bindings {
		inner := make(List, 0, len(b.Params))
		for _, p := range b.Params {
			inner = append(inner, NewStruct().
				Set("name", Text(p.Name)).
				Set("text", Text(p.Value)))
		}
		bindings = append(bindings, NewStruct().
			Set("name", Text(b.Name)).
			Set("wrapped", NewStruct().
				Set("moduleName", Text(b.Module)).
				Set("innerBindings", inner)))
	}
	worker.Set("bindings", bindings)

	return worker
}

// extensionModules assembles the fixed shared shim set
func (g *Generator) extensionModules(ctx context.Context) (List, error) {
	var modules List

	for _, name := range sortedKeys(implShims) {
		path := filepath.Join(g.shimDir, implShims[name])
		bundled, err := g.bundler.Bundle(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to bundle implementation shim %s: %w", name, err)
		}
		modules = append(modules, NewStruct().
			Set("name", Text(name)).
			Set("esModule", Text(bundled)))
	}

	for _, name := range sortedKeys(bindingShims) {
		path := filepath.Join(g.shimDir, bindingShims[name])
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read binding shim %s: %w", name, err)
		}
		modules = append(modules, NewStruct().
			Set("name", Text(name)).
			Set("internal", Bool(true)).
			Set("esModule", Text(string(raw))))
	}

	return modules, nil
}
