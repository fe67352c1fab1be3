// Package keymap derives destination storage keys for derivatives.
//
// Layout: <dest-root>/<alias>/<subpath>, where subpath is the source key with
// the source root removed. An empty alias maps straight to
// <dest-root>/<subpath>. Derivatives are grouped bucket-wide by alias, so
// every "s" derivative lives under derived/s/.
package keymap

import "strings"

// DefaultDestRoot is the destination prefix used when none is configured.
const DefaultDestRoot = "derived/"

// Mapper maps source keys to destination keys.
type Mapper struct {
	sourceRoot string
	destRoot   string
}

// New creates a Mapper. Both roots are normalised to end with a single "/".
// An empty destRoot falls back to DefaultDestRoot.
func New(sourceRoot, destRoot string) Mapper {
	if destRoot == "" {
		destRoot = DefaultDestRoot
	}
	return Mapper{sourceRoot: withSlash(sourceRoot), destRoot: withSlash(destRoot)}
}

// DestRoot returns the normalised destination prefix.
func (m Mapper) DestRoot() string { return m.destRoot }

// DestinationKey returns the key a derivative with alias is stored under.
// The source key is expected to carry the source root; callers validate
// that before mapping.
func (m Mapper) DestinationKey(sourceKey, alias string) string {
	sub := strings.TrimPrefix(sourceKey, m.sourceRoot)
	sub = strings.TrimLeft(sub, "/")
	if alias == "" {
		return m.destRoot + sub
	}
	return m.destRoot + strings.Trim(alias, "/") + "/" + sub
}

func withSlash(root string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return ""
	}
	return root + "/"
}
