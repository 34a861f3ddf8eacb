package polish

import (
	"bytes"

	"github.com/tidwall/gjson"
)

const (
	msgUnknownUpstream    = "Unknown error from upstream."
	msgUnrecognizedFormat = "Upstream returned an unrecognized format."
)

// rule is one (predicate, extractor) pair of the normalizer. Rules are tried
// in declaration order and the first match wins.
type rule struct {
	name    string
	matches func(gjson.Result) bool
	extract func(gjson.Result) Envelope
}

var rules = []rule{
	{name: "canonical", matches: isCanonical, extract: fromCanonical},
	{name: "array", matches: gjson.Result.IsArray, extract: fromArray},
	{name: "string", matches: isString, extract: fromString},
	{name: "openai_choices", matches: hasChoiceText, extract: fromChoices},
	{name: "gemini_candidates", matches: hasCandidateText, extract: fromCandidates},
	{name: "error_field", matches: hasErrorField, extract: fromErrorField},
}

// Normalize maps an arbitrary upstream response body onto an Envelope.
// A body that is not valid JSON is treated as a bare text suggestion.
// Normalize never fails; unknown shapes become an unrecognized-format envelope.
func Normalize(body []byte) Envelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return NormalizeString(string(body))
	}
	parsed := gjson.ParseBytes(trimmed)
	if parsed.Type == gjson.Null {
		return NormalizeString(string(body))
	}
	return normalizeResult(parsed)
}

// NormalizeString wraps text already known to be a plain string.
func NormalizeString(text string) Envelope {
	return Suggestion(Text(text))
}

// Rule returns the name of the first rule matching body, or "" if none does.
func Rule(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return "string"
	}
	r := gjson.ParseBytes(trimmed)
	for _, rl := range rules {
		if rl.matches(r) {
			return rl.name
		}
	}
	return ""
}

func normalizeResult(r gjson.Result) Envelope {
	for _, rl := range rules {
		if rl.matches(r) {
			return rl.extract(r)
		}
	}
	return Failure(KindUnrecognizedFormat, msgUnrecognizedFormat)
}

func isCanonical(r gjson.Result) bool {
	if !r.IsObject() {
		return false
	}
	return r.Get("success").Exists() || r.Get("data").Exists() || r.Get("type").Exists()
}

func fromCanonical(r gjson.Result) Envelope {
	data := r.Get("data")
	if !truthy(data) {
		if res := r.Get("result"); truthy(res) {
			data = res
		}
	}
	if data.IsObject() {
		if t := data.Get("text"); t.Type == gjson.String {
			data = t
		}
	}
	if !data.Exists() || data.Type == gjson.Null {
		if m := r.Get("message"); m.Type == gjson.String {
			data = m
		}
	}

	success := truthy(data)
	if s := r.Get("success"); s.Type == gjson.True || s.Type == gjson.False {
		success = s.Bool()
	}

	typ := TypeSuggestion
	if t := r.Get("type"); t.Type == gjson.String {
		typ = parseResultType(t.Str)
	}
	if typ == TypeError {
		success = false
	}

	if !success {
		msg := msgUnknownUpstream
		if e := r.Get("error"); truthy(e) {
			msg = stringify(e)
		}
		return Failure(KindUpstreamReported, msg)
	}
	return Envelope{Success: true, Data: coerce(data), Type: typ}
}

// coerce turns any JSON value into envelope data. Null becomes "" and
// non-string scalars or objects become their JSON text.
func coerce(v gjson.Result) Data {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return Text("")
	case v.IsArray():
		return List(stringItems(v))
	default:
		return Text(stringify(v))
	}
}

func stringItems(v gjson.Result) []string {
	arr := v.Array()
	items := make([]string, 0, len(arr))
	for _, it := range arr {
		items = append(items, stringify(it))
	}
	return items
}

func stringify(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}

func fromArray(r gjson.Result) Envelope {
	return Suggestion(List(stringItems(r)))
}

func isString(r gjson.Result) bool { return r.Type == gjson.String }

func fromString(r gjson.Result) Envelope {
	return NormalizeString(r.Str)
}

func choiceText(r gjson.Result) string {
	if !r.IsObject() {
		return ""
	}
	first := r.Get("choices.0")
	if !first.IsObject() {
		return ""
	}
	if t := first.Get("text"); t.Type == gjson.String && t.Str != "" {
		return t.Str
	}
	if c := first.Get("message.content"); c.Type == gjson.String && c.Str != "" {
		return c.Str
	}
	return ""
}

func hasChoiceText(r gjson.Result) bool { return choiceText(r) != "" }

func fromChoices(r gjson.Result) Envelope {
	return Suggestion(Text(choiceText(r)))
}

func candidateText(r gjson.Result) string {
	if !r.IsObject() {
		return ""
	}
	t := r.Get("candidates.0.content.parts.0.text")
	if t.Type == gjson.String {
		return t.Str
	}
	return ""
}

func hasCandidateText(r gjson.Result) bool { return candidateText(r) != "" }

func fromCandidates(r gjson.Result) Envelope {
	return Suggestion(Text(candidateText(r)))
}

func hasErrorField(r gjson.Result) bool {
	return r.IsObject() && truthy(r.Get("error"))
}

func fromErrorField(r gjson.Result) Envelope {
	return Failure(KindUpstreamReported, stringify(r.Get("error")))
}

// truthy follows loose JSON truthiness: missing, null, false, 0 and "" are false.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		return true
	}
	return false
}
