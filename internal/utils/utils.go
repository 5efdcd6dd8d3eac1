package utils

import (
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// URIToPath converts a "file://" URI to a clean filesystem path. Anything
// else is returned unchanged.
func URIToPath(uri protocol.DocumentUri) string {
	u := string(uri)
	if strings.HasPrefix(u, "file://") {
		if uu, err := url.Parse(u); err == nil {
			return filepath.Clean(filepath.FromSlash(uu.Path))
		}
	}
	return u
}

// PathToURI converts a filesystem path to a "file://" URI.
func PathToURI(p string) protocol.DocumentUri {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return protocol.DocumentUri(u.String())
}

// AppendUnique appends v only if it is not present yet.
func AppendUnique[T comparable](slice []T, v T) []T {
	if slices.Contains(slice, v) {
		return slice
	}
	return append(slice, v)
}

// UTF16Len counts s in UTF-16 code units, the unit of LSP columns.
func UTF16Len(s string) uint32 {
	var n uint32
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}
