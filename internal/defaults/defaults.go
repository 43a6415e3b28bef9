// Package defaults holds the files installed by "weaver init".
package defaults

import _ "embed"

// ConfigYAML is the annotated starter configuration.
//
//go:embed config.yaml
var ConfigYAML []byte
