// Package configs embeds the annotated configuration template written by
// `magicfolder config init`.
package configs

import _ "embed"

// ConfigTemplate is a commented config file listing every key with its
// default. It is valid for both the user and the project location.
//
//go:embed config.example.yaml
var ConfigTemplate string
