package model

import (
	"path/filepath"
	"strings"
)

// DecomposedPath holds the components of a source file path that
// destination templates can refer to.
type DecomposedPath struct {
	FullPath  string // path as delivered by the watch source
	Root      string // volume name plus leading separator, "/" on unix
	Directory string // parent directory
	BaseName  string // last element, including the extension
	Extension string // extension with the leading dot, may be empty
	Stem      string // base name without the extension
}

// Decompose splits an absolute path into its components.
//
// A dotfile such as ".hidden" has no extension and the whole name as stem.
func Decompose(path string) DecomposedPath {
	base := filepath.Base(path)

	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}

	root := filepath.VolumeName(path)
	if strings.HasPrefix(path[len(root):], string(filepath.Separator)) {
		root += string(filepath.Separator)
	}

	return DecomposedPath{
		FullPath:  path,
		Root:      root,
		Directory: filepath.Dir(path),
		BaseName:  base,
		Extension: ext,
		Stem:      strings.TrimSuffix(base, ext),
	}
}
