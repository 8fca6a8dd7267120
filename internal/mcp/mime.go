package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps source file extensions to MIME types.
var mimeTypes = map[string]string{
	// Notes and documents
	".md":   "text/markdown",
	".mdx":  "text/markdown",
	".txt":  "text/plain",
	".rst":  "text/x-rst",
	".org":  "text/x-org",
	".adoc": "text/asciidoc",
	".html": "text/html",
	".htm":  "text/html",

	// Data
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".xml":  "text/xml",
	".toml": "text/x-toml",
	".csv":  "text/csv",

	// Code
	".go":   "text/x-go",
	".py":   "text/x-python",
	".ts":   "text/typescript",
	".js":   "text/javascript",
	".rs":   "text/x-rust",
	".java": "text/x-java",
	".sh":   "text/x-sh",
	".sql":  "text/x-sql",
}

// MimeTypeForPath returns the MIME type for a fragment's source file.
// Returns "text/plain" for unknown types.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "text/plain"
}
