package capability

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Binding is one compiled capability grant: the shim module wired into the
// sandbox plus the static parameters the shim receives at load time
type Binding struct {
	// Name is the binding entry name inside the sandbox (e.g. "storage")
	Name string
	// Module is the binding-shim module specifier resolved through the
	// reserved internal import scheme
	Module string
	// Params is the ordered static parameter list
	Params []Param
}

// Param is one named static binding parameter
type Param struct {
	Name  string
	Value string
}

// Shim module specifiers. Binding shims stay unbundled so they can import
// the reserved host-internal scheme at load time.
const (
	StorageBindingModule = "host-internal:storage-binding"
	LogBindingModule     = "host-internal:log-binding"
)

// Gateway RPC paths baked into bindings
const (
	StorageRPCPath = "/rpc/storage"
	LogRPCPath     = "/rpc/log"
)

// Request carries the context a binding set is compiled for
type Request struct {
	HostRPCURL string
	TenantID   string
	ProviderID string
	StreamID   *int64
}

// Compiler turns a plugin's declared permissions into concrete bindings
type Compiler struct {
	logger    zerolog.Logger
	onDropped func(resource, scope string)
}

// NewCompiler creates a binding compiler. onDropped is invoked for every
// well-formed permission the capability table does not recognize; it may
// be nil.
func NewCompiler(logger zerolog.Logger, onDropped func(resource, scope string)) *Compiler {
	return &Compiler{
		logger:    logger.With().Str("component", "capability-compiler").Logger(),
		onDropped: onDropped,
	}
}

// Compile parses the permission list and produces one binding per distinct
// recognized capability. A malformed permission fails the whole compile.
// Well-formed permissions without a capability table entry produce no
// binding; they are logged and counted but do not fail the load.
func (c *Compiler) Compile(permissions []string, req Request) ([]Binding, error) {
	seen := make(map[string]bool)
	var bindings []Binding

	for _, raw := range permissions {
		perm, err := ParsePermission(raw)
		if err != nil {
			return nil, fmt.Errorf("permission compile failed: %w", err)
		}

		binding, ok := c.lookup(perm, req)
		if !ok {
			c.logger.Warn().
				Str("permission", perm.String()).
				Str("tenantId", req.TenantID).
				Str("providerId", req.ProviderID).
				Msg("Dropping unrecognized permission")
			if c.onDropped != nil {
				c.onDropped(perm.Resource, perm.Scope)
			}
			continue
		}

		// a plugin requesting the same capability twice yields one binding
		if seen[binding.Name] {
			continue
		}
		seen[binding.Name] = true
		bindings = append(bindings, binding)
	}

	return bindings, nil
}

// lookup consults the fixed capability table
func (c *Compiler) lookup(perm Permission, req Request) (Binding, bool) {
	switch perm.Key() {
	case "storage" + Delimiter + "isolated":
		return Binding{
			Name:   "storage",
			Module: StorageBindingModule,
			Params: []Param{
				{Name: "hostUrl", Value: req.HostRPCURL},
				{Name: "rpcPath", Value: StorageRPCPath},
				{Name: "providerId", Value: req.ProviderID},
				{Name: "tenantId", Value: req.TenantID},
			},
		}, true

	case "log" + Delimiter + "attach":
		params := []Param{
			{Name: "hostUrl", Value: req.HostRPCURL},
			{Name: "rpcPath", Value: LogRPCPath},
			{Name: "tenantId", Value: req.TenantID},
		}
		if req.StreamID != nil {
			params = append(params, Param{Name: "streamId", Value: strconv.FormatInt(*req.StreamID, 10)})
		}
		return Binding{
			Name:   "log",
			Module: LogBindingModule,
			Params: params,
		}, true
	}

	return Binding{}, false
}
