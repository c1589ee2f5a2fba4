// Package sanitize provides HTML sanitization for user-generated content.
// Uses bluemonday to strip dangerous HTML (script tags, event handlers,
// javascript: URLs) while keeping safe formatting. Lead and client notes are
// edited as rich text in the dashboard and rendered back via innerHTML, so
// anything persisted must go through here first.
package sanitize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton bluemonday policy for sanitizing user-generated HTML.
// Initialized once via sync.Once for thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once

	textPolicy     *bluemonday.Policy
	textPolicyOnce sync.Once
)

// getPolicy returns the shared sanitization policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()

		// Allow class attributes broadly. The notes editor uses classes for
		// text alignment and code blocks.
		policy.AllowAttrs("class").Globally()

		// Allow style attribute on spans for inline formatting from the editor
		// (e.g., text color, background color).
		policy.AllowAttrs("style").OnElements("span", "p", "div", "td", "th")

		// Allow table elements for rich text tables.
		policy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "td", "th", "colgroup", "col", "caption")
		policy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	})
	return policy
}

// getTextPolicy returns the strict text-only policy used for ingested values.
func getTextPolicy() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// HTML sanitizes user-generated HTML content by stripping dangerous elements
// (script, iframe, event handlers, javascript: URLs) while preserving safe
// formatting tags.
//
// This MUST be called on all user-provided HTML before storing it in the database.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	return getPolicy().Sanitize(input)
}

// Text strips ALL markup from a string, leaving plain text. Used for values
// arriving from webhook payloads, where markup is never legitimate.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return getTextPolicy().Sanitize(input)
}
