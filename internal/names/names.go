// Package names maps the spellings people use in the tracker to the canonical
// names accounting expects.
package names

import (
	"errors"
	"fmt"
	"slices"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/config"
)

// ErrInvalidReference reports a names reference that is not a flat
// string-to-string mapping.
var ErrInvalidReference = errors.New("invalid names reference")

// Reference maps an alias to its canonical name.
type Reference map[string]string

// Load reads a reference from a JSON, JSONC or YAML file.
// An empty path yields an empty reference.
func Load(path string) (Reference, error) {
	if path == "" {
		return Reference{}, nil
	}

	var raw map[string]any

	err := config.DecodeDataFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	ref := make(Reference, len(raw))

	for alias, v := range raw {
		canonical, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w %s: value for %q must be a string, got %T", ErrInvalidReference, path, alias, v)
		}

		ref[alias] = canonical
	}

	return ref, nil
}

// Normalizer resolves raw names against a Reference.
type Normalizer struct {
	aliases map[string]string
	targets map[string]struct{}
}

// NewNormalizer builds a normalizer. The reference is copied.
func NewNormalizer(ref Reference) *Normalizer {
	n := &Normalizer{
		aliases: make(map[string]string, len(ref)),
		targets: make(map[string]struct{}, len(ref)),
	}

	for alias, canonical := range ref {
		n.aliases[alias] = canonical
		n.targets[canonical] = struct{}{}
	}

	return n
}

// Normalize returns the canonical spelling of raw and whether the name is
// known. A name is known when it is an alias or already a canonical name.
// Unknown names are returned unchanged.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	if canonical, ok := n.aliases[raw]; ok {
		return canonical, true
	}

	_, known := n.targets[raw]

	return raw, known
}

// Targets returns the distinct canonical names, sorted.
func (n *Normalizer) Targets() []string {
	out := make([]string, 0, len(n.targets))

	for name := range n.targets {
		out = append(out, name)
	}

	slices.Sort(out)

	return out
}
