package ai

import (
	"errors"
	"testing"

	"personapost/pkg/domain"
)

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n[1,2]\n```": "[1,2]",
		"```\nhello\n```":     "hello",
		"  plain text  ":      "plain text",
		"```[\"a\"]```":       "[\"a\"]",
	}
	for in, want := range cases {
		if got := StripCodeFences(in); got != want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePostArray(t *testing.T) {
	posts, err := ParsePostArray("```json\n[{\"post\": \"one\"}, {\"post\": \" two \"}]\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 2 || posts[0] != "one" || posts[1] != "two" {
		t.Fatalf("unexpected posts: %#v", posts)
	}
}

func TestParsePostArrayRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"Here are your posts: [{\"post\": \"one\"}]",
		"{\"post\": \"one\"}",
		"[]",
		"[{\"text\": \"one\"}]",
		"[{\"post\": \"\"}]",
		"[\"one\"]",
		"[{\"post\": \"one\"},",
	} {
		if _, err := ParsePostArray(raw); !errors.Is(err, domain.ErrParse) {
			t.Fatalf("expected ErrParse for %q, got %v", raw, err)
		}
	}
}

func TestParseStringArray(t *testing.T) {
	topics, err := ParseStringArray("[\"AI in retail\", \"Remote work\"]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(topics) != 2 || topics[1] != "Remote work" {
		t.Fatalf("unexpected topics: %#v", topics)
	}
	if _, err := ParseStringArray("[\"ok\", 3]"); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse for mixed array, got %v", err)
	}
	if _, err := ParseStringArray("Sure! [\"a\"] hope this helps"); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse for prose-wrapped array, got %v", err)
	}
}

func TestParseSingleText(t *testing.T) {
	text, err := ParseSingleText("```\nJust one post\n```")
	if err != nil || text != "Just one post" {
		t.Fatalf("unexpected result %q err=%v", text, err)
	}
	if _, err := ParseSingleText("   "); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse for blank output, got %v", err)
	}
}
