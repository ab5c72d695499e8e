package scan

import (
	"path"
	"strings"

	"github.com/bindery-js/bindery/internal/ast"
)

type ResolveResult struct {
	// For bundled modules this is the description key. For external modules
	// it's the specifier as written.
	ID       string
	External bool
}

type Resolver interface {
	Resolve(importer string, specifier string, kind ast.ImportKind) (ResolveResult, bool)
}

// Resolves specifiers against the module ids of a description. Relative
// specifiers follow the node rules for extensions and "index" files. Bare
// specifiers are looked up as-is and then in "node_modules".
type descriptionResolver struct {
	desc *Description
}

func NewDescriptionResolver(desc *Description) Resolver {
	return &descriptionResolver{desc: desc}
}

var extensionOrder = []string{"", ".js", ".mjs", ".cjs", ".ts", ".json", "/index.js"}

func (r *descriptionResolver) Resolve(importer string, specifier string, kind ast.ImportKind) (ResolveResult, bool) {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || strings.HasPrefix(specifier, "/") {
		base := specifier
		if !strings.HasPrefix(specifier, "/") {
			base = path.Join(path.Dir(importer), specifier)
		}
		if id, ok := r.lookup(base); ok {
			return r.result(id, specifier), true
		}
		return ResolveResult{}, false
	}

	if id, ok := r.lookup(specifier); ok {
		return r.result(id, specifier), true
	}
	for _, prefix := range []string{"node_modules/", "/node_modules/"} {
		if id, ok := r.lookup(prefix + specifier); ok {
			return r.result(id, specifier), true
		}
	}
	if r.isExternal(specifier) {
		return ResolveResult{ID: specifier, External: true}, true
	}
	return ResolveResult{}, false
}

func (r *descriptionResolver) lookup(base string) (string, bool) {
	for _, ext := range extensionOrder {
		if _, ok := r.desc.Modules[base+ext]; ok {
			return base + ext, true
		}
	}
	return "", false
}

func (r *descriptionResolver) result(id string, specifier string) ResolveResult {
	if r.desc.Modules[id].External {
		return ResolveResult{ID: specifier, External: true}
	}
	return ResolveResult{ID: id}
}

func (r *descriptionResolver) isExternal(specifier string) bool {
	for _, pattern := range r.desc.External {
		if pattern == specifier {
			return true
		}
		if ok, err := path.Match(pattern, specifier); err == nil && ok {
			return true
		}

		// "react" also covers "react/jsx-runtime"
		if strings.HasPrefix(specifier, pattern+"/") {
			return true
		}
	}
	return false
}
