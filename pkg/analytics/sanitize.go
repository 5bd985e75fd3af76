package analytics

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/vanderheijden86/aios/pkg/model"
)

// ErrUnknownEvent is returned for event names outside the taxonomy.
var ErrUnknownEvent = errors.New("unknown event name")

// forbiddenKey matches property names that suggest free text or PII.
var forbiddenKey = regexp.MustCompile(`(?i)(body|content|title|subject|name|e-?mail|phone|address|message|prompt|output|text|description|password|passwd|token|secret|ssn|location)`)

// categoryValue restricts categorical values to identifier-like tokens.
var categoryValue = regexp.MustCompile(`^[a-z0-9][a-z0-9_.:-]{0,63}$`)

// IsForbiddenKey reports whether a property key is rejected regardless of allowlist.
func IsForbiddenKey(key string) bool {
	return forbiddenKey.MatchString(key)
}

// Report lists the keys a Sanitize call dropped, grouped by reason.
type Report struct {
	Forbidden  []string // matched the forbidden-field pattern
	NotAllowed []string // not on the event's allowlist
	Invalid    []string // allowlisted, but the value could not be sanitized
}

// Dropped returns the total number of dropped keys.
func (r Report) Dropped() int {
	return len(r.Forbidden) + len(r.NotAllowed) + len(r.Invalid)
}

// Sanitizer applies the property policy of the event taxonomy. It holds no
// mutable state and is safe for concurrent use.
type Sanitizer struct {
	modules model.ModuleRegistry
}

// NewSanitizer returns a Sanitizer validating module_id values against modules.
// A nil registry uses model.DefaultModules.
func NewSanitizer(modules model.ModuleRegistry) *Sanitizer {
	if modules == nil {
		modules = model.DefaultModules()
	}
	return &Sanitizer{modules: modules}
}

// Sanitize filters raw down to the allowlisted keys of name and converts every
// surviving value to its safe representation. It never panics on malformed
// input. Already-sanitized props pass through unchanged, so re-running
// Sanitize on its own output is a no-op.
func (s *Sanitizer) Sanitize(name model.EventName, raw map[string]any) (map[string]string, Report, error) {
	var rep Report
	allow, ok := model.AllowedProps(name)
	if !ok {
		return nil, rep, ErrUnknownEvent
	}

	out := make(map[string]string, len(raw))
	for key, v := range raw {
		if IsForbiddenKey(key) {
			rep.Forbidden = append(rep.Forbidden, key)
			continue
		}
		kind, ok := allow[key]
		if !ok {
			rep.NotAllowed = append(rep.NotAllowed, key)
			continue
		}
		val, ok := s.value(key, kind, v)
		if !ok {
			rep.Invalid = append(rep.Invalid, key)
			continue
		}
		out[key] = val
	}

	sort.Strings(rep.Forbidden)
	sort.Strings(rep.NotAllowed)
	sort.Strings(rep.Invalid)
	return out, rep, nil
}

// SanitizeStrings is Sanitize for props that were already reduced to strings,
// such as events read back from the queue.
func (s *Sanitizer) SanitizeStrings(name model.EventName, props map[string]string) (map[string]string, Report, error) {
	raw := make(map[string]any, len(props))
	for k, v := range props {
		raw[k] = v
	}
	return s.Sanitize(name, raw)
}

func (s *Sanitizer) value(key string, kind model.PropKind, v any) (string, bool) {
	switch kind {
	case model.PropCount:
		return bucketed(v, CountLabels, BucketCount)
	case model.PropLength:
		return bucketed(v, LengthLabels, BucketLength)
	case model.PropDuration:
		return bucketed(v, DurationLabels, BucketDuration)
	case model.PropFlag:
		b, ok := toBool(v)
		if !ok {
			return "", false
		}
		if b {
			return "true", true
		}
		return "false", true
	case model.PropCategory:
		text, ok := toText(v)
		if !ok {
			return "", false
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if !categoryValue.MatchString(text) {
			return "", false
		}
		if key == model.PropModuleID && !model.IsKnownModule(s.modules, model.ModuleID(text)) {
			return "", false
		}
		return text, true
	}
	return "", false
}

func bucketed(v any, labels []string, bucket func(float64) string) (string, bool) {
	if text, ok := v.(string); ok && isLabel(labels, text) {
		return text, true
	}
	n, ok := toNumber(v)
	if !ok {
		return "", false
	}
	return bucket(n), true
}
