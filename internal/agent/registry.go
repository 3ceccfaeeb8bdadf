package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	maxToolNameLength = 256
	maxInputSize      = 10 * 1024 * 1024 // 10MB
)

// Registry holds the capabilities available to the turn loop. The set is
// fixed at startup; Register is not called once turns are being served.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registration
}

type registration struct {
	tool       Tool
	schema     *jsonschema.Schema
	idempotent bool
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registration)}
}

// Register adds a capability. The declared schema is compiled once here;
// a schema that does not compile is a programming error surfaced at
// startup, not at call time. Tools implementing Idempotent are recorded
// as exempt from duplicate blocking.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if len(name) > maxToolNameLength {
		return fmt.Errorf("tool name too long: %d chars", len(name))
	}

	var schema *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		compiled, err := compileSchema(raw)
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", name, err)
		}
		schema = compiled
	}

	reg := &registration{tool: tool, schema: schema}
	if idem, ok := tool.(Idempotent); ok {
		reg.idempotent = idem.Idempotent()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = reg
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// IsIdempotent reports whether the named capability declared itself
// idempotent. Unknown names are not idempotent.
func (r *Registry) IsIdempotent(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return ok && reg.idempotent
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns descriptors for every registered capability, sorted by
// name, for inclusion in model invocations.
func (r *Registry) Specs() []CapabilitySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]CapabilitySpec, 0, len(r.tools))
	for _, reg := range r.tools {
		specs = append(specs, CapabilitySpec{
			Name:        reg.tool.Name(),
			Description: reg.tool.Description(),
			Schema:      reg.tool.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute validates the input and runs the named capability. An unknown
// name or a validation failure returns an error-carrying ToolResult with a
// nil error; the turn keeps moving and the model sees what went wrong.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (*ToolResult, error) {
	if len(input) > maxInputSize {
		return &ToolResult{
			Content: fmt.Sprintf("input too large: %d bytes (max %d)", len(input), maxInputSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("unknown capability: %s (available: %s)", name, strings.Join(r.Names(), ", ")),
			IsError: true,
		}, nil
	}

	if reg.schema != nil {
		if err := validateInput(reg.schema, input); err != nil {
			return &ToolResult{
				Content: fmt.Sprintf("invalid arguments for %s: %v", name, err),
				IsError: true,
			}, nil
		}
	}

	return reg.tool.Execute(ctx, input)
}

func validateInput(schema *jsonschema.Schema, input json.RawMessage) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(decoded)
}

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
