// Package config loads histsess configuration.
//
// Files are YAML. The raw document is checked against an embedded CUE
// schema (closed, so unknown keys are rejected) before it is decoded over
// the defaults.
package config
