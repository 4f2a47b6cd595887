package workflow

import (
	"strings"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
)

// PermittedActions returns the actions an actor may take on an item in the
// given pair. Admins get every configured action; other actors get all of
// them only when their role is the owning department, and nothing otherwise.
// An unknown pair grants nothing.
func PermittedActions(role string, isAdmin bool, dept Department, status string, cfg *Config) []Action {
	sc, ok := cfg.FindStatus(dept, status)
	if !ok || len(sc.Actions) == 0 {
		return nil
	}
	if !isAdmin && !strings.EqualFold(strings.TrimSpace(role), string(dept)) {
		return nil
	}
	actions := make([]Action, len(sc.Actions))
	copy(actions, sc.Actions)
	return actions
}

// IsActionAllowed applies the assignment lock: an item assigned to someone
// can only be acted on by that person or an admin.
func IsActionAllowed(actor auth.Actor, itemAssignedTo string) bool {
	if actor.IsAdmin || itemAssignedTo == "" {
		return true
	}
	return actor.ID == itemAssignedTo
}

// CanAct combines the department rule and the assignment lock.
func CanAct(actor auth.Actor, dept Department, status, itemAssignedTo string, cfg *Config) bool {
	if _, ok := cfg.FindStatus(dept, status); !ok {
		return false
	}
	if !actor.IsAdmin && !strings.EqualFold(actor.Role, string(dept)) {
		return false
	}
	return IsActionAllowed(actor, itemAssignedTo)
}
