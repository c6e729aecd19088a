// Package solver provides ordered issue-solver pools.
//
// A pool is a fixed chain of rule handlers that inspect a shared context
// (current configuration plus freshly fetched backend data) and emit typed
// issues. Handler order is significant and fixed at construction; a run folds
// every handler's findings into one collection, and later handlers may read
// issues raised by earlier ones. The shell branches on the result, e.g. an
// issue tagged "default_env" short-circuits normal startup and triggers a
// corrective environment re-selection.
package solver

import "slices"

// Severity expresses how serious an issue is
type Severity int

const (
	// SeverityInfo marks informational findings (a setting was normalized)
	SeverityInfo Severity = iota
	// SeverityWarning marks findings that change the startup path
	SeverityWarning
	// SeverityError marks findings that require user-visible handling
	SeverityError
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Well-known issue tags the shell branches on
const (
	// TagDefaultEnv marks a conflict with the configured default environment
	TagDefaultEnv = "default_env"
	// TagFetch marks a failed or invalid backend fetch
	TagFetch = "fetch"
	// TagTOS marks unaccepted terms of service
	TagTOS = "tos"
	// TagConfiguration marks a persisted setting that was normalized
	TagConfiguration = "configuration"
)

// Issue is an immutable finding produced by a solver handler
type Issue struct {
	Kind     string   // Handler-assigned kind, e.g. "environment", "settings"
	Tags     []string // Tags the caller filters on
	Message  string   // Human-readable description
	Severity Severity
}

// HasTag reports whether the issue carries tag
func (i Issue) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// Collection is an ordered list of issues from one pool run
type Collection []Issue

// Only returns the issues whose tag set intersects tags, preserving the
// original relative order. An empty result means no issue matched.
func (c Collection) Only(tags ...string) Collection {
	var out Collection
	for _, issue := range c {
		for _, tag := range tags {
			if issue.HasTag(tag) {
				out = append(out, issue)
				break
			}
		}
	}
	return out
}

// AtLeast returns the issues at or above the given severity, in order
func (c Collection) AtLeast(severity Severity) Collection {
	var out Collection
	for _, issue := range c {
		if issue.Severity >= severity {
			out = append(out, issue)
		}
	}
	return out
}

// Messages returns every issue message in order
func (c Collection) Messages() []string {
	out := make([]string, len(c))
	for i, issue := range c {
		out[i] = issue.Message
	}
	return out
}
