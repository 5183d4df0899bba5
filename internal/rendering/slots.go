// Package rendering fills named slots in message templates with per-user
// values.
package rendering

import (
	"regexp"
	"sort"
)

// Slot placeholders use {name} syntax where name is [A-Za-z0-9_.]+.
var slotPattern = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// ExtractSlots returns the set of distinct placeholder names in a template.
func ExtractSlots(template string) map[string]struct{} {
	slots := make(map[string]struct{})
	for _, m := range slotPattern.FindAllStringSubmatch(template, -1) {
		slots[m[1]] = struct{}{}
	}
	return slots
}

// FillSlots substitutes placeholder values into a template. Placeholders
// without a supplied value are left unchanged when keepUnknown is true,
// otherwise removed. Filling never fails: partially-complete messages stay
// inspectable instead of aborting a run.
func FillSlots(template string, values map[string]string, keepUnknown bool) string {
	return slotPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok {
			return v
		}
		if keepUnknown {
			return match
		}
		return ""
	})
}

// MissingSlots returns the sorted placeholder names referenced by the
// template that have no supplied value.
func MissingSlots(template string, values map[string]string) []string {
	var missing []string
	for name := range ExtractSlots(template) {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
