package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Template placeholders use double braces: "Hello {{name}}". Variable names
// are word characters, optionally surrounded by spaces.
var placeholderRegex = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// renderString substitutes variables into tmpl. A placeholder with no
// matching variable renders as the empty string; the miss is logged at debug
// level so template authors can spot typos without failing deliveries.
func renderString(tmpl string, variables map[string]interface{}) string {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	return placeholderRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRegex.FindStringSubmatch(match)[1]
		value, ok := variables[name]
		if !ok {
			log.Debug().Str("variable", name).Msg("[Render] Missing template variable")
			return ""
		}
		return stringify(value)
	})
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		// JSON numbers decode as float64; keep integers clean.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
