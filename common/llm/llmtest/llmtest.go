// Package llmtest provides scripted completion streams for tests.
package llmtest

import "github.com/ashtonliu88/diff-digest/common/llm"

// Fragments returns a single-use sequence over fixed fragments, optionally
// ending with err.
func Fragments(fragments []string, err error) llm.Fragments {
	return llm.Once(func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	})
}
