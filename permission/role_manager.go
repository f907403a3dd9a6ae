package permission

import (
	"errors"
	"sync"
)

// RoleManager maps role names to the permission masks they grant.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole binds roleName to permissionNames. Every permission must already
// be registered.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the mask granted by roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[roleName]
	return mask, ok
}

// MaskFor unions the masks of every known role in roles. Unknown roles grant nothing.
func (rm *RoleManager) MaskFor(roles []string) Mask64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	var mask Mask64
	for _, role := range roles {
		mask = mask.Union(rm.roles[role])
	}
	return mask
}

// Allows reports whether any of roles grants permissionName.
func (rm *RoleManager) Allows(roles []string, permissionName string) bool {
	bit, ok := rm.registry.Bit(permissionName)
	if !ok {
		return false
	}
	return rm.MaskFor(roles).Has(bit)
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
