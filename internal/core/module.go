// Package core provides the module system: a registry of pluggable
// components keyed by namespaced ID, their lifecycle, and the shared
// context they are provisioned with.
package core

import "strings"

// ModuleID is a namespaced module identifier such as "embedding.ollama".
type ModuleID string

// Namespace returns the part before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part after the first dot.
func (id ModuleID) Name() string {
	_, name, found := strings.Cut(string(id), ".")
	if !found {
		return string(id)
	}
	return name
}

// Module is implemented by every pluggable component.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}
