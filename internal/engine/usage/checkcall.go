package usage

import (
	"fmt"

	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/engine/parser"
)

// CheckCall reports whether a call site fits the entity's signature, and why
// not. Star and double-star arguments at the call site make the check
// conservative: any parameter they could plausibly supply counts as supplied.
func CheckCall(call *parser.CallInfo, entity api.Entity) (bool, string) {
	if call == nil || !entity.Callable() {
		return true, ""
	}
	params := entity.Signature
	if entity.Kind == api.KindMethod && len(params) > 0 &&
		(params[0].Name == "self" || params[0].Name == "cls") {
		params = params[1:]
	}

	var positional []string
	keyword := make(map[string]bool)
	positionalOnly := make(map[string]bool)
	allowExtraPositional, allowExtraKeyword := false, false
	for _, p := range params {
		switch {
		case p.IsVariadic && p.IsKeywordOnly:
			allowExtraKeyword = true
		case p.IsVariadic:
			allowExtraPositional = true
		default:
			if !p.IsKeywordOnly {
				positional = append(positional, p.Name)
			}
			if p.IsPositionalOnly {
				positionalOnly[p.Name] = true
			} else {
				keyword[p.Name] = true
			}
		}
	}

	if call.Positional > len(positional) && !allowExtraPositional {
		return false, fmt.Sprintf("takes up to %d positional arguments but %d were given",
			len(positional), call.Positional)
	}

	supplied := make(map[string]bool)
	n := call.Positional
	if n > len(positional) {
		n = len(positional)
	}
	for _, name := range positional[:n] {
		supplied[name] = true
	}
	for _, kw := range call.Keywords {
		if positionalOnly[kw] {
			return false, fmt.Sprintf("%q is a positional-only parameter", kw)
		}
		if !keyword[kw] && !allowExtraKeyword {
			return false, fmt.Sprintf("unexpected keyword argument %q", kw)
		}
		supplied[kw] = true
	}

	for _, p := range params {
		if p.IsVariadic || p.HasDefault || supplied[p.Name] {
			continue
		}
		missing := fmt.Sprintf("missing required argument %q", p.Name)
		switch {
		case !call.HasStarArgs && !call.HasKwArgs:
			return false, missing
		case p.IsKeywordOnly && !call.HasKwArgs:
			return false, missing
		case p.IsPositionalOnly && !call.HasStarArgs:
			return false, missing
		}
	}
	return true, ""
}
