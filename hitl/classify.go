package hitl

import "strings"

// Category is the coarse risk classification of an action.
type Category string

const (
	CategorySafe        Category = "safe"
	CategoryModerate    Category = "moderate"
	CategoryDestructive Category = "destructive"
	CategoryCritical    Category = "critical"
)

// criticalActions is the hard-coded always-pause list. It is consulted by
// static classification only, so it keeps working when the learning store
// is down.
var criticalActions = map[string]bool{
	"database_drop":     true,
	"drop_database":     true,
	"force_push":        true,
	"delete_production": true,
	"production_deploy": true,
	"rotate_secrets":    true,
}

// Keyword heuristics applied to the action type, most severe first.
var (
	criticalKeywords    = []string{"drop", "force"}
	destructiveKeywords = []string{"delete", "remove", "destroy", "purge", "truncate", "wipe", "kill"}
	moderateKeywords    = []string{"write", "update", "create", "modify", "deploy", "push", "send", "execute", "restart"}
	safeKeywords        = []string{"read", "get", "list", "view", "fetch", "query", "inspect", "describe", "status"}
)

// ClassifyAction maps an action deterministically into a risk category.
// Classification is pattern-based and read-only; it never consults
// history.
func ClassifyAction(action Action) Category {
	actionType := strings.ToLower(action.Type)

	if criticalActions[actionType] {
		return CategoryCritical
	}
	if containsAny(actionType, criticalKeywords) {
		return CategoryCritical
	}
	if containsAny(actionType, destructiveKeywords) {
		return CategoryDestructive
	}
	if containsAny(actionType, moderateKeywords) {
		return CategoryModerate
	}
	if containsAny(actionType, safeKeywords) {
		return CategorySafe
	}
	// Unknown action types sit in the middle rather than failing open.
	return CategoryModerate
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
