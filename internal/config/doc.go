// Package config loads Quill settings from QUILL_-prefixed environment
// variables, an optional .env file and an optional config.yaml, then
// validates them. Optional backends are switched off by leaving their URL or
// host empty.
package config
