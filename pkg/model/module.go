package model

import "sort"

// ModuleID identifies a feature module of the app.
type ModuleID string

const (
	ModuleNotebook      ModuleID = "notebook"
	ModuleTasks         ModuleID = "tasks"
	ModuleCalendar      ModuleID = "calendar"
	ModuleEmail         ModuleID = "email"
	ModuleLists         ModuleID = "lists"
	ModuleCommandCenter ModuleID = "command_center"
	ModuleSettings      ModuleID = "settings"
)

// ModuleMetadata is the static description of a feature module.
type ModuleMetadata struct {
	ID          ModuleID `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Route       string   `json:"route" yaml:"route"`
	Category    string   `json:"category" yaml:"category"`
}

// ModuleRegistry resolves module identifiers to their metadata.
type ModuleRegistry interface {
	Module(id ModuleID) (ModuleMetadata, bool)
}

// StaticRegistry is an immutable in-memory ModuleRegistry.
type StaticRegistry map[ModuleID]ModuleMetadata

// Module implements ModuleRegistry.
func (r StaticRegistry) Module(id ModuleID) (ModuleMetadata, bool) {
	m, ok := r[id]
	return m, ok
}

// IDs returns the registered module ids, sorted.
func (r StaticRegistry) IDs() []ModuleID {
	ids := make([]ModuleID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DefaultModules returns the registry of built-in modules.
func DefaultModules() StaticRegistry {
	return StaticRegistry{
		ModuleNotebook:      {ID: ModuleNotebook, DisplayName: "Notebook", Route: "/notebook", Category: "productivity"},
		ModuleTasks:         {ID: ModuleTasks, DisplayName: "Tasks", Route: "/tasks", Category: "productivity"},
		ModuleCalendar:      {ID: ModuleCalendar, DisplayName: "Calendar", Route: "/calendar", Category: "planning"},
		ModuleEmail:         {ID: ModuleEmail, DisplayName: "Email", Route: "/email", Category: "communication"},
		ModuleLists:         {ID: ModuleLists, DisplayName: "Lists", Route: "/lists", Category: "productivity"},
		ModuleCommandCenter: {ID: ModuleCommandCenter, DisplayName: "Command Center", Route: "/command-center", Category: "insights"},
		ModuleSettings:      {ID: ModuleSettings, DisplayName: "Settings", Route: "/settings", Category: "system"},
	}
}

// IsKnownModule reports whether id is registered in reg. A nil registry knows nothing.
func IsKnownModule(reg ModuleRegistry, id ModuleID) bool {
	if reg == nil || id == "" {
		return false
	}
	_, ok := reg.Module(id)
	return ok
}
