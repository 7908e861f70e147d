// Package validator extracts and repairs JSON payloads emitted by LLMs.
// Every call site that parses a model response routes through here so the
// tolerant-parsing behavior lives in one place (see "LLM glue with
// duck-typed JSON" — retain the tolerance, don't spread it across call sites).
package validator

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ErrorKind classifies why a parse could not be recovered.
type ErrorKind string

const (
	ErrorEmpty       ErrorKind = "empty"
	ErrorDecode      ErrorKind = "decode"
	ErrorMissingKeys ErrorKind = "missing_keys"
	ErrorNotObject   ErrorKind = "not_object"
	ErrorNotArray    ErrorKind = "not_array"
)

// Result is the outcome of Parse. It never carries a Go error — Parse
// never throws; callers branch on Ok and ErrorKind.
type Result struct {
	Ok           bool
	Parsed       any
	RepairSteps  []string
	ErrorKind    ErrorKind
}

// ExpectArray selects whether the outermost structure should be a JSON
// array instead of an object.
type Options struct {
	ExpectedKeys []string
	ExpectArray  bool
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	objectRe      = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRe       = regexp.MustCompile(`(?s)\[.*\]`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

// Parse extracts and repairs JSON from raw LLM output, then verifies the
// expected top-level keys (when the target is an object).
func Parse(raw string, opts Options) Result {
	steps := make([]string, 0, 4)

	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{Ok: false, ErrorKind: ErrorEmpty, RepairSteps: steps}
	}

	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
		steps = append(steps, "strip_fenced_block")
	}

	text = strings.Trim(text, "`")
	if trimmed := strings.TrimFunc(text, func(r rune) bool { return r == '\'' || r == '"' }); trimmed != text {
		// Only treat as wrapping quotes if the result still looks structural.
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			text = trimmed
			steps = append(steps, "strip_wrapping_quotes")
		}
	}

	pattern := objectRe
	if opts.ExpectArray {
		pattern = arrayRe
	}
	if m := pattern.FindString(text); m != "" && m != text {
		text = m
		steps = append(steps, "extract_outermost")
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return verify(parsed, steps, opts)
	}
	steps = append(steps, "strict_parse_failed")

	repaired := repair(text)
	if repaired != text {
		steps = append(steps, "tolerant_repair")
	}

	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return Result{Ok: false, ErrorKind: ErrorDecode, RepairSteps: steps}
	}

	return verify(parsed, steps, opts)
}

// repair applies brace/bracket balancing, trailing-comma removal,
// unquoted-key quoting, and smart-quote replacement.
func repair(s string) string {
	s = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	).Replace(s)

	s = trailingComma.ReplaceAllString(s, "$1")
	s = unquotedKey.ReplaceAllString(s, `$1"$2"$3`)

	opens := strings.Count(s, "{") - strings.Count(s, "}")
	for i := 0; i < opens; i++ {
		s += "}"
	}
	opensB := strings.Count(s, "[") - strings.Count(s, "]")
	for i := 0; i < opensB; i++ {
		s += "]"
	}

	return s
}

func verify(parsed any, steps []string, opts Options) Result {
	if opts.ExpectArray {
		if _, ok := parsed.([]any); !ok {
			return Result{Ok: false, ErrorKind: ErrorNotArray, RepairSteps: steps}
		}
		return Result{Ok: true, Parsed: parsed, RepairSteps: steps}
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return Result{Ok: false, ErrorKind: ErrorNotObject, RepairSteps: steps}
	}

	for _, key := range opts.ExpectedKeys {
		if _, present := obj[key]; !present {
			return Result{Ok: false, ErrorKind: ErrorMissingKeys, RepairSteps: steps}
		}
	}

	return Result{Ok: true, Parsed: obj, RepairSteps: steps}
}

// ExtractTopicList tolerates {"topics":[...]}, a bare top-level array, or
// an object with a single unknown key whose value is an array — per the
// claims orchestrator's P1/P4 duck-typed contract.
func ExtractTopicList(raw string, knownKey string) ([]any, []string, bool) {
	res := Parse(raw, Options{})
	if res.Ok {
		if obj, ok := res.Parsed.(map[string]any); ok {
			if v, present := obj[knownKey]; present {
				if arr, ok := v.([]any); ok {
					return arr, res.RepairSteps, true
				}
			}
			for _, v := range obj {
				if arr, ok := v.([]any); ok {
					return arr, res.RepairSteps, true
				}
			}
		}
	}

	res = Parse(raw, Options{ExpectArray: true})
	if res.Ok {
		if arr, ok := res.Parsed.([]any); ok {
			return arr, res.RepairSteps, true
		}
	}

	return nil, res.RepairSteps, false
}
