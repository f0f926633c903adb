// Package config loads and validates the typed configuration for every
// configurable surface of smbcored: the file-state cache, the passthru
// authenticator, and the network server runtime.
//
// Precedence, highest to lowest:
//  1. Environment variables (SMBCORED_*)
//  2. YAML configuration file
//  3. Defaults
package config
