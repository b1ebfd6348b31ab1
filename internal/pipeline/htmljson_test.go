package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFromHTML(t *testing.T) {
	tests := []struct {
		name         string
		markup       string
		noAttributes bool
		want         any
	}{
		{
			name:   "element unwraps to its children",
			markup: `<div><span>Hi</span></div>`,
			want:   map[string]any{"span": "Hi"},
		},
		{
			name:   "sole text collapses",
			markup: `<p>Hi there</p>`,
			want:   "Hi there",
		},
		{
			name:   "attributes become prefixed keys",
			markup: `<img alt="x">`,
			want:   map[string]any{"@alt": "x"},
		},
		{
			name:   "attributes sit beside text",
			markup: `<div class="a" id="x">Hello</div>`,
			want: map[string]any{
				"@class": "a",
				"@id":    "x",
				"#text":  "Hello",
			},
		},
		{
			name:         "noAttributes drops them",
			markup:       `<div class="a">Hello</div>`,
			noAttributes: true,
			want:         "Hello",
		},
		{
			name:   "repeated tags become arrays",
			markup: `<ul><li>a</li><li>b</li><li>c</li></ul>`,
			want: map[string]any{
				"li": []any{"a", "b", "c"},
			},
		},
		{
			name:   "sibling fragments merge by tag",
			markup: `<li>a</li><li>b</li>`,
			want:   map[string]any{"li": []any{"a", "b"}},
		},
		{
			name:   "whitespace is normalized",
			markup: "<p>  Hello\n\t  world </p>",
			want:   "Hello world",
		},
		{
			name:   "mixed content keeps text alongside children",
			markup: `<div>before<span>in</span>after</div>`,
			want: map[string]any{
				"span":  "in",
				"#text": "before after",
			},
		},
		{
			name:   "bare text",
			markup: "just text",
			want:   "just text",
		},
		{
			name:   "full document keeps the html root",
			markup: `<html><head><title>T</title></head><body><p>x</p></body></html>`,
			want: map[string]any{"html": map[string]any{
				"head": map[string]any{"title": "T"},
				"body": map[string]any{"p": "x"},
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromHTML(tc.markup, tc.noAttributes)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("FromHTML mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
