// Package configs embeds the annotated configuration template written by
// `amanrecall config init`.
package configs

import _ "embed"

// ConfigTemplate documents every option with its default. It is valid both
// as a user config and as a project .amanrecall.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string
