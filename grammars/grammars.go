// Package grammars embeds the built-in language descriptors.
package grammars

import "embed"

// FS holds the built-in descriptors at its root. Descriptors in the user's
// langs directory override these by language name.
//
//go:embed *.toml
var FS embed.FS
