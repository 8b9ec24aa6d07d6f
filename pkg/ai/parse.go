package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"personapost/pkg/domain"
)

var fenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)\r?\n?```$")

// StripCodeFences removes one surrounding markdown code fence, if present.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ParsePostArray requires a JSON array of {"post": "..."} objects with
// non-empty post text.
func ParsePostArray(raw string) ([]string, error) {
	arr, err := jsonArray(raw)
	if err != nil {
		return nil, err
	}
	posts := make([]string, 0, len(arr))
	for i, item := range arr {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: item %d is not an object", domain.ErrParse, i)
		}
		post := item.Get("post")
		if post.Type != gjson.String || strings.TrimSpace(post.String()) == "" {
			return nil, fmt.Errorf("%w: item %d has no post text", domain.ErrParse, i)
		}
		posts = append(posts, strings.TrimSpace(post.String()))
	}
	return posts, nil
}

// ParseStringArray requires a JSON array of non-empty strings.
func ParseStringArray(raw string) ([]string, error) {
	arr, err := jsonArray(raw)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(arr))
	for i, item := range arr {
		if item.Type != gjson.String || strings.TrimSpace(item.String()) == "" {
			return nil, fmt.Errorf("%w: item %d is not a non-empty string", domain.ErrParse, i)
		}
		out = append(out, strings.TrimSpace(item.String()))
	}
	return out, nil
}

// ParseSingleText returns fence-stripped text, rejecting empty output.
func ParseSingleText(raw string) (string, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty model output", domain.ErrParse)
	}
	return text, nil
}

func jsonArray(raw string) ([]gjson.Result, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty model output", domain.ErrParse)
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: model output is not valid JSON", domain.ErrParse)
	}
	res := gjson.Parse(text)
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrParse)
	}
	arr := res.Array()
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty JSON array", domain.ErrParse)
	}
	return arr, nil
}
