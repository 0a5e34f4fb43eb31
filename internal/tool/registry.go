package tool

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type entry struct {
	desc Descriptor
	args *jsonschema.Schema
}

// IndexReport summarizes one IndexFrom pass.
type IndexReport struct {
	Files      int
	Indexed    int
	Skipped    int
	Duplicates []string
	Errors     []error
}

// Registry holds tool descriptors keyed by name.
// Readers always see a complete snapshot: IndexFrom swaps the whole map.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*entry
	static      map[string]*entry
	generation  uint64
	subscribers []func()
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		static: make(map[string]*entry),
		logger: logger.With("component", "tool-registry"),
	}
}

// IndexFrom walks root recursively, decodes every *.json descriptor file and
// replaces the registry content with the result. Malformed descriptors are
// logged and skipped. Tools with the same name resolve to the last file
// visited in lexical path order.
func (r *Registry) IndexFrom(ctx context.Context, root string) (IndexReport, error) {
	var report IndexReport

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walking %s: %w", root, err)
	}

	next := make(map[string]*entry)
	filesOK := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Files++

		descs, err := r.indexFile(path, &report)
		if err != nil {
			report.Errors = append(report.Errors, err)
			r.logger.Warn("skipping descriptor file", "path", path, "error", err)
			continue
		}
		if len(descs) > 0 {
			filesOK++
		}
		for _, e := range descs {
			if _, exists := next[e.desc.Name]; exists {
				report.Duplicates = append(report.Duplicates, e.desc.Name)
				r.logger.Warn("duplicate tool name, last definition wins",
					"tool", e.desc.Name, "path", path)
			}
			next[e.desc.Name] = e
		}
	}

	if report.Files > 0 && filesOK == 0 {
		return report, fmt.Errorf("%w: %d file(s) under %s", ErrIndexFailed, report.Files, root)
	}

	report.Indexed = len(next)
	r.commit(func(map[string]*entry) map[string]*entry {
		for name, e := range r.static {
			if _, ok := next[name]; !ok {
				next[name] = e
			}
		}
		return next
	})
	r.logger.Info("tool registry indexed",
		"root", root, "files", report.Files, "tools", report.Indexed, "skipped", report.Skipped)
	return report, nil
}

func (r *Registry) indexFile(path string, report *IndexReport) ([]*entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	descs, derrs, err := Decode(data)
	if err != nil {
		return nil, err
	}
	for _, derr := range derrs {
		report.Skipped++
		report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, derr))
		r.logger.Warn("skipping malformed descriptor", "path", path, "error", derr)
	}

	entries := make([]*entry, 0, len(descs))
	for _, d := range descs {
		d.Source = path
		e, err := newEntry(d)
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, err))
			r.logger.Warn("skipping descriptor with unusable schema", "path", path, "tool", d.Name, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func newEntry(d Descriptor) (*entry, error) {
	sch, err := compileArgumentSchema(d)
	if err != nil {
		return nil, fmt.Errorf("%w: argument schema for %s: %v", ErrMalformedDescriptor, d.Name, err)
	}
	return &entry{desc: d, args: sch}, nil
}

// commit replaces the registry content under the write lock and notifies
// subscribers once the lock is released.
func (r *Registry) commit(build func(current map[string]*entry) map[string]*entry) {
	r.mu.Lock()
	r.tools = build(r.tools)
	r.generation++
	subs := slices.Clone(r.subscribers)
	r.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Register adds or replaces a single descriptor.
func (r *Registry) Register(d Descriptor) error {
	if issues := Validate(d); len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrMalformedDescriptor, issues[0])
	}
	e, err := newEntry(d)
	if err != nil {
		return err
	}

	r.commit(func(current map[string]*entry) map[string]*entry {
		next := maps.Clone(current)
		next[d.Name] = e
		return next
	})
	return nil
}

// RegisterStatic adds descriptors that survive every later IndexFrom
// pass. Descriptor files declaring the same name take precedence. The
// descriptors are checked as a batch: on error nothing is registered.
func (r *Registry) RegisterStatic(descs ...Descriptor) error {
	entries := make([]*entry, 0, len(descs))
	for _, d := range descs {
		if issues := Validate(d); len(issues) > 0 {
			return fmt.Errorf("%w: %s: %s", ErrMalformedDescriptor, d.Name, issues[0])
		}
		e, err := newEntry(d)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	r.commit(func(current map[string]*entry) map[string]*entry {
		next := maps.Clone(current)
		for _, e := range entries {
			r.static[e.desc.Name] = e
			if cur, ok := next[e.desc.Name]; ok && cur.desc.Source != "" {
				continue
			}
			next[e.desc.Name] = e
		}
		return next
	})
	return nil
}

// Subscribe registers fn to be called after every content change.
func (r *Registry) Subscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Generation increases every time the registry content changes.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Get returns the descriptor with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.desc, nil
}

// All returns every descriptor sorted by name.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.desc)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// ByCategory returns the descriptors of one category sorted by name.
func (r *Registry) ByCategory(category string) []Descriptor {
	return slices.DeleteFunc(r.All(), func(d Descriptor) bool {
		return !strings.EqualFold(d.Category, category)
	})
}

// Names returns all tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of indexed tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ValidateArguments checks decoded call arguments against the parameter
// schema of the named tool.
func (r *Registry) ValidateArguments(name string, args any) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := e.args.Validate(args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return nil
}
