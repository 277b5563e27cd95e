package tags

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmes "github.com/jmespath/go-jmespath"

	"tenantdash/pkg/problems"
)

// ExtractTag evaluates a JMESPath expression against a decoded JSON payload
// and returns the raw tag it selects. Missing values yield "". A list selects
// its first non-empty string element.
func ExtractTag(doc any, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", problems.Invalid("webhook", "missing tag path")
	}
	expr, err := jmes.Compile(path)
	if err != nil {
		return "", problems.Invalid("webhook", fmt.Sprintf("bad tag path: %v", err))
	}
	res, err := expr.Search(doc)
	if err != nil {
		return "", problems.Invalid("webhook", fmt.Sprintf("tag path: %v", err))
	}
	return tagString(res), nil
}

// ExtractTagJSON is ExtractTag over a raw body.
func ExtractTagJSON(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", problems.Invalid("webhook", "bad json")
	}
	return ExtractTag(doc, path)
}

func tagString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		for _, it := range x {
			if s := tagString(it); s != "" {
				return s
			}
		}
		return ""
	}
	return ""
}
