package business

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Analysis is the structured audit payload attached to an entity. Only keys
// listed in AnalysisKeys are merged.
type Analysis map[string]any

// issuesKey is merged as a set instead of being overwritten.
const issuesKey = "issues"

// AnalysisKeys lists the top-level analysis keys accepted from observations.
var AnalysisKeys = map[string]bool{
	issuesKey:        true,
	"has_website":    true,
	"website_status": true,
	"overall_score":  true,
	"seo":            true,
	"performance":    true,
	"security":       true,
	"mobile":         true,
	"accessibility":  true,
	"tracking":       true,
	"social":         true,
	"tech_stack":     true,
	"gdpr":           true,
	"content":        true,
	"analyzed_at":    true,
}

// SanitizeAnalysis returns a copy of a restricted to AnalysisKeys. Null
// values are dropped so that they never erase previously merged data.
func SanitizeAnalysis(a Analysis) Analysis {
	if len(a) == 0 {
		return nil
	}
	out := make(Analysis, len(a))
	for k, v := range a {
		if !AnalysisKeys[k] {
			zap.L().Debug("analysis: dropping unknown key", zap.String("key", k))
			continue
		}
		if v == nil {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeAnalysis shallow-merges next over prev. The issues arrays of both are
// unioned in order, deduplicated by their JSON encoding.
func MergeAnalysis(prev, next Analysis) Analysis {
	next = SanitizeAnalysis(next)
	if len(prev) == 0 && len(next) == 0 {
		return nil
	}
	out := make(Analysis, len(prev)+len(next))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range next {
		if k == issuesKey {
			continue
		}
		out[k] = v
	}

	_, prevHas := prev[issuesKey]
	_, nextHas := next[issuesKey]
	if prevHas || nextHas {
		out[issuesKey] = unionAny(asList(prev[issuesKey]), asList(next[issuesKey]))
	}
	return out
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{t}
	}
}

func unionAny(a, b []any) []any {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]any, 0, len(a)+len(b))
	for _, list := range [][]any{a, b} {
		for _, v := range list {
			key, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if seen[string(key)] {
				continue
			}
			seen[string(key)] = true
			out = append(out, v)
		}
	}
	return out
}

func cloneAnalysis(a Analysis) Analysis {
	if a == nil {
		return nil
	}
	out := make(Analysis, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
