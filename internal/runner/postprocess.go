package runner

import (
	"encoding/json"

	"github.com/inkforge/inkforge/internal/schema"
	"github.com/inkforge/inkforge/internal/shared/jsonrepair"
	"github.com/inkforge/inkforge/internal/shared/stringutils"
)

const (
	placeholderTitle   = "生成内容不完整"
	placeholderHeading = "解析失败"
	placeholderPoint   = 50 // runes of raw output kept in the placeholder
)

// PostProcess turns raw model text into the tool's declared output. Text
// tools get the raw string back. JSON tools get a parsed value; when no
// value can be recovered the result degrades to an empty list or a
// placeholder object and degraded is true.
func PostProcess(outputType schema.OutputType, raw string) (result any, degraded bool) {
	if outputType != schema.OutputJSON {
		return raw, false
	}

	payload, kind := jsonrepair.Extract(stringutils.StripThink(raw))
	if kind == jsonrepair.None {
		return Placeholder(raw), true
	}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		if kind == jsonrepair.Array {
			return []any{}, true
		}
		return Placeholder(raw), true
	}
	return v, false
}

// Placeholder is the degraded object returned for unparseable output.
func Placeholder(raw string) map[string]any {
	return map[string]any{
		"title": placeholderTitle,
		"sections": []any{
			map[string]any{
				"heading":    placeholderHeading,
				"key_points": []any{stringutils.Prefix(raw, placeholderPoint)},
			},
		},
	}
}
