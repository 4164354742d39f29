package skills

import (
	"fmt"
	"sort"
	"sync"
)

// providers is the static table of every capability this build can activate.
// Learning never extends this table; it only activates names already here.
var providers = map[string]func() Capability{
	"notepad":        func() Capability { return &NotepadCapability{} },
	"upload_receipt": func() Capability { return NewUploadReceipt() },
	"text_normalize": func() Capability { return &TextNormalizeCapability{} },
}

// builtins are active from process start without any learning step.
var builtins = []string{"notepad", "upload_receipt"}

// Registry maps capability names to activated implementations and enforces
// the new-skill budget.
type Registry struct {
	mu       sync.Mutex
	active   map[string]Capability
	maxNew   int
	newCount int
}

// NewRegistry returns a registry with the built-in capabilities active and
// room for maxNew learned ones.
func NewRegistry(maxNew int) *Registry {
	r := &Registry{
		active: make(map[string]Capability),
		maxNew: maxNew,
	}
	for _, name := range builtins {
		r.active[name] = providers[name]()
	}
	return r
}

// LoadManifest activates every previously learned skill listed in the
// manifest at path. A missing manifest is an empty one. Names absent from
// the provider table are skipped; this build simply cannot serve them.
func (r *Registry) LoadManifest(path string) error {
	manifest, err := ReadManifest(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range manifest.Skills {
		provider, ok := providers[entry.Name]
		if !ok {
			continue
		}
		if _, exists := r.active[entry.Name]; !exists {
			r.active[entry.Name] = provider()
		}
	}
	return nil
}

// Get returns the activated capability for name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[name]
	return c, ok
}

// Names returns the active capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanAdd reports whether the new-skill budget has room.
func (r *Registry) CanAdd() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newCount < r.maxNew
}

// Add consumes one unit of the new-skill budget.
func (r *Registry) Add(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.newCount >= r.maxNew {
		return fmt.Errorf("max new skills exceeded (%d)", r.maxNew)
	}
	r.newCount++
	return nil
}

// Activate installs a capability instance directly, bypassing the provider
// table. Callers use it to substitute implementations, for example a stub
// browser in tests or a network-disabled variant.
func (r *Registry) Activate(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[c.Name()] = c
}

// Register activates name from the provider table. Re-registering an active
// name is a no-op.
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[name]; exists {
		return nil
	}
	provider, ok := providers[name]
	if !ok {
		return fmt.Errorf("no provider for capability %q", name)
	}
	r.active[name] = provider()
	return nil
}
