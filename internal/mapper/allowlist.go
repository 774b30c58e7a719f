package mapper

import "slices"

const wildcardAction = "*"

// allowedActions maps each handled GitHub event to the actions that reach
// the feed. A wildcard accepts every action.
var allowedActions = map[string][]string{
	"deployment":   {"created"},
	"issues":       {wildcardAction},
	"package":      {"published", "updated"},
	"pull_request": {"closed", "opened"},
	"push":         {wildcardAction},
	"release":      {"published", "released"},
}

// IsAllowedEvent reports whether event has an allow-list at all.
func IsAllowedEvent(event string) bool {
	_, ok := allowedActions[event]
	return ok
}

// IsWildcardEvent reports whether every action of event is accepted.
func IsWildcardEvent(event string) bool {
	return slices.Contains(allowedActions[event], wildcardAction)
}

// IsAllowedAction reports whether action passes the allow-list of event.
func IsAllowedAction(event, action string) bool {
	actions, ok := allowedActions[event]
	if !ok {
		return false
	}
	return slices.Contains(actions, wildcardAction) || slices.Contains(actions, action)
}

// AllowedEvents lists the handled event names in a stable order.
func AllowedEvents() []string {
	events := make([]string, 0, len(allowedActions))
	for event := range allowedActions {
		events = append(events, event)
	}
	slices.Sort(events)
	return events
}
