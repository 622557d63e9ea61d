package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	modules   = make(map[ModuleID]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule adds a module to the global registry. It panics on an
// empty ID, a nil constructor, or a duplicate ID. Call it from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if !strings.Contains(string(info.ID), ".") {
		panic(fmt.Sprintf("core: module ID %q must be namespaced", info.ID))
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s: New function must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	if _, exists := modules[info.ID]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", info.ID))
	}
	modules[info.ID] = info
}

// GetModule returns the ModuleInfo for id.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return filterModules(func(ModuleInfo) bool { return true })
}

// GetModulesByNamespace returns the modules in namespace ("embedding"
// matches "embedding.api" and "embedding.ollama"), sorted by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return filterModules(func(info ModuleInfo) bool {
		return info.ID.Namespace() == namespace
	})
}

func filterModules(keep func(ModuleInfo) bool) []ModuleInfo {
	modulesMu.RLock()
	var result []ModuleInfo
	for _, info := range modules {
		if keep(info) {
			result = append(result, info)
		}
	}
	modulesMu.RUnlock()

	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[ModuleID]ModuleInfo)
}
