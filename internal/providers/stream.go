package providers

import (
	"iter"
	"strings"
)

// Collect drains a fragment stream into one string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

// FromText wraps already complete text as a single-fragment stream.
func FromText(text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if text == "" {
			return
		}
		yield(text, nil)
	}
}

func fromError(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

// primeStream pulls the first fragment so that a provider failing before any
// output can be detected. The returned stream replays that fragment and then
// continues with the rest.
func primeStream(seq iter.Seq2[string, error]) (iter.Seq2[string, error], error) {
	next, stop := iter.Pull2(seq)
	first, err, ok := next()
	if !ok {
		stop()
		return FromText(""), nil
	}
	if err != nil {
		stop()
		return nil, err
	}
	return func(yield func(string, error) bool) {
		defer stop()
		if !yield(first, nil) {
			return
		}
		for {
			frag, err, ok := next()
			if !ok {
				return
			}
			if !yield(frag, err) || err != nil {
				return
			}
		}
	}, nil
}
