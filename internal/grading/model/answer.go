package model

import (
	"bytes"
	"encoding/json"
)

// AnswerKind classifies a submitted answer value.
type AnswerKind uint8

const (
	AnswerAbsent AnswerKind = iota
	AnswerString
	AnswerList
	// AnswerMalformed is any JSON shape other than null, a string or an array of strings.
	AnswerMalformed
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerAbsent:
		return "absent"
	case AnswerString:
		return "string"
	case AnswerList:
		return "list"
	default:
		return "malformed"
	}
}

// AnswerValue is a submitted answer. The zero value is an absent answer.
// Decoding never fails; unexpected shapes become AnswerMalformed and keep their raw bytes.
type AnswerValue struct {
	kind AnswerKind
	str  string
	list []string
	raw  json.RawMessage
}

// StringAnswer builds a single-valued answer.
func StringAnswer(s string) AnswerValue {
	raw, _ := json.Marshal(s)
	return AnswerValue{kind: AnswerString, str: s, raw: raw}
}

// ListAnswer builds a multi-valued answer.
func ListAnswer(values ...string) AnswerValue {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return AnswerValue{kind: AnswerList, list: append([]string(nil), values...), raw: raw}
}

func (a AnswerValue) Kind() AnswerKind { return a.kind }

// Str returns the value when the answer is a single string.
func (a AnswerValue) Str() (string, bool) {
	return a.str, a.kind == AnswerString
}

// List returns the values when the answer is a list of strings.
func (a AnswerValue) List() ([]string, bool) {
	if a.kind != AnswerList {
		return nil, false
	}
	return a.list, true
}

// Raw returns the answer exactly as submitted; nil for absent answers.
func (a AnswerValue) Raw() json.RawMessage { return a.raw }

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	*a = AnswerValue{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	a.raw = append(json.RawMessage(nil), trimmed...)

	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &a.str); err == nil {
			a.kind = AnswerString
			return nil
		}
	case '[':
		var items []*string
		if err := json.Unmarshal(trimmed, &items); err == nil && !containsNil(items) {
			a.list = make([]string, len(items))
			for i, s := range items {
				a.list[i] = *s
			}
			a.kind = AnswerList
			return nil
		}
	}
	a.kind = AnswerMalformed
	a.str, a.list = "", nil
	return nil
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if len(a.raw) == 0 {
		return []byte("null"), nil
	}
	return a.raw, nil
}

func containsNil(items []*string) bool {
	for _, s := range items {
		if s == nil {
			return true
		}
	}
	return false
}
