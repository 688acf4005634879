// Package registry discovers agent capability descriptors and produces
// ready-to-invoke prompts for them.
//
// Descriptors are plain text documents. The registry walks a descriptor
// directory once at construction, derives each agent's name from its file
// name, and keeps the name -> descriptor map immutable for the process
// lifetime. Two descriptors normalizing to the same name is a
// configuration error surfaced at scan time.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/types"
)

// Descriptor file markers. An agent supports structured handoff only when
// its descriptor carries both the integration section heading and the
// literal declaration token; otherwise the agent is treated as terminal.
const (
	integrationSectionMarker = "Integration Points"
	handoffDeclarationToken  = "HANDOFF DECLARATION"

	specialtiesPrefix = "Specialties:"
	versionPrefix     = "Version:"
)

// descriptorExtensions are the file extensions scanned for descriptors.
var descriptorExtensions = []string{".md", ".txt"}

// AgentDescriptor is one discovered agent. Immutable once loaded.
type AgentDescriptor struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Path            string   `json:"path"`
	Specialties     []string `json:"specialties,omitempty"`
	SupportsHandoff bool     `json:"supports_handoff"`

	text string
}

// Text returns the full descriptor text.
func (d AgentDescriptor) Text() string { return d.text }

// Registry holds the name -> descriptor map built by a single scan.
// Read-only after construction and safe for concurrent use.
type Registry struct {
	agents map[string]AgentDescriptor
	names  []string // sorted
	logger *zap.Logger
}

// New scans dir and builds a registry from the descriptors found there.
func New(dir string, logger *zap.Logger) (*Registry, error) {
	return NewFromFS(os.DirFS(dir), logger)
}

// NewFromFS scans fsys and builds a registry. Exposed for tests and for
// embedded descriptor sets.
func NewFromFS(fsys fs.FS, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		agents: make(map[string]AgentDescriptor),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
	if err := r.scan(fsys); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) scan(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read descriptor directory: %w", err)
	}

	sources := make(map[string]string) // name -> file that claimed it
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := normalizeDescriptorName(entry.Name())
		if !ok {
			continue
		}
		if prev, exists := sources[name]; exists {
			return types.NewError(types.ErrDescriptorConflict,
				fmt.Sprintf("descriptors %q and %q both normalize to agent name %q", prev, entry.Name(), name))
		}
		sources[name] = entry.Name()

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read descriptor %s: %w", entry.Name(), err)
		}
		text := string(data)

		r.agents[name] = AgentDescriptor{
			Name:            name,
			Version:         extractLineValue(text, versionPrefix, "v1"),
			Path:            entry.Name(),
			Specialties:     extractSpecialties(text),
			SupportsHandoff: CheckHandoffCapability(text),
			text:            text,
		}
		r.names = append(r.names, name)
	}

	sort.Strings(r.names)
	r.logger.Info("scanned agent descriptors", zap.Int("count", len(r.agents)))
	return nil
}

// normalizeDescriptorName derives an agent name from a descriptor file
// name: extension, trailing version marker (_v2) and trailing "_agent"
// suffix are stripped. Returns false for non-descriptor files.
func normalizeDescriptorName(fileName string) (string, bool) {
	name := ""
	for _, ext := range descriptorExtensions {
		if strings.HasSuffix(fileName, ext) {
			name = strings.TrimSuffix(fileName, ext)
			break
		}
	}
	if name == "" {
		return "", false
	}
	if idx := strings.LastIndex(name, "_v"); idx > 0 && isDigits(name[idx+2:]) {
		name = name[:idx]
	}
	name = strings.TrimSuffix(name, "_agent")
	if name == "" {
		return "", false
	}
	return name, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Load returns the full descriptor text for the named agent.
func (r *Registry) Load(name string) (string, error) {
	desc, ok := r.agents[name]
	if !ok {
		return "", &AgentNotFoundError{Name: name, Candidates: r.candidates()}
	}
	return desc.text, nil
}

// Descriptor returns the descriptor metadata for the named agent.
func (r *Registry) Descriptor(name string) (AgentDescriptor, error) {
	desc, ok := r.agents[name]
	if !ok {
		return AgentDescriptor{}, &AgentNotFoundError{Name: name, Candidates: r.candidates()}
	}
	return desc, nil
}

// Has reports whether the named agent exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.agents[name]
	return ok
}

// Names returns all agent names in alphabetic order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// candidates returns the first 10 names, alphabetic, to aid debugging
// when a lookup misses.
func (r *Registry) candidates() []string {
	n := len(r.names)
	if n > 10 {
		n = 10
	}
	out := make([]string, n)
	copy(out, r.names[:n])
	return out
}

// CheckHandoffCapability reports whether a descriptor text declares
// structured-handoff support.
func CheckHandoffCapability(text string) bool {
	return strings.Contains(text, integrationSectionMarker) &&
		strings.Contains(text, handoffDeclarationToken)
}

func extractLineValue(text, prefix, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			if v := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)); v != "" {
				return v
			}
		}
	}
	return fallback
}

func extractSpecialties(text string) []string {
	raw := extractLineValue(text, specialtiesPrefix, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
