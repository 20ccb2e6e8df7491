package match

import (
	"context"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
)

type teeSink []Sink

// Tee returns a Sink that hands every result to each sink in order,
// stopping at the first error.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

func (t teeSink) Add(ctx context.Context, result cohort.MatchResult) error {
	for _, s := range t {
		if err := s.Add(ctx, result); err != nil {
			return err
		}
	}
	return nil
}
