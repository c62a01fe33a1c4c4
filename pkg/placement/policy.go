package placement

import (
	"fmt"
	"sort"

	"github.com/fleetctl/fleetd/pkg/types"
)

// Candidate is a worker plus the variables its placement expressions may
// reference: tags (arbitrary key/value), host, domain and the worker's
// current instance count (used by the default rank expression).
type Candidate struct {
	Worker      types.Worker
	InstanceCount int
}

func (c Candidate) vars() map[string]any {
	tags := make(map[string]any, len(c.Worker.Tags))
	for k, v := range c.Worker.Tags {
		tags[k] = v
	}
	return map[string]any{
		"tags":   tags,
		"host":   c.Worker.Host,
		"domain": c.Worker.Domain,
		"ncont":  float64(c.InstanceCount),
	}
}

// defaultRank ranks candidates by ascending instance count: fewest
// containers first.
const defaultRank = "ncont"

// Policy compiles a placement spec's requirements and rank expression once
// so Select can be called repeatedly per pending instance without
// re-parsing.
type Policy struct {
	requirements []expr
	rank         expr
}

// Compile parses the requirement expressions (all must hold) and the rank
// expression (lower score wins). An empty rank string falls back to
// defaultRank.
func Compile(opts *types.PlacementOptions) (*Policy, error) {
	p := &Policy{}
	if opts != nil {
		for _, req := range opts.Requirements {
			e, err := Parse(req)
			if err != nil {
				return nil, fmt.Errorf("placement: requirement %q: %w", req, err)
			}
			p.requirements = append(p.requirements, e)
		}
	}

	rankSrc := defaultRank
	if opts != nil && opts.Rank != "" {
		rankSrc = opts.Rank
	}
	e, err := Parse(rankSrc)
	if err != nil {
		return nil, fmt.Errorf("placement: rank %q: %w", rankSrc, err)
	}
	p.rank = e
	return p, nil
}

// Filter returns the subset of candidates for which every requirement
// expression evaluates truthy.
func (p *Policy) Filter(candidates []Candidate) ([]Candidate, error) {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		ok := true
		vars := c.vars()
		for _, req := range p.requirements {
			v, err := req.eval(vars)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type ranked struct {
	candidate Candidate
	score     float64
}

// Rank sorts candidates ascending by the rank expression's score, lowest
// first, with a stable tie-break on worker ID so repeated calls over the
// same candidate set place deterministically.
func (p *Policy) Rank(candidates []Candidate) ([]Candidate, error) {
	scored := make([]ranked, len(candidates))
	for i, c := range candidates {
		v, err := p.rank.eval(c.vars())
		if err != nil {
			return nil, err
		}
		n, err := toNumber(v)
		if err != nil {
			return nil, fmt.Errorf("placement: rank expression did not produce a number: %w", err)
		}
		scored[i] = ranked{candidate: c, score: n}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		return scored[i].candidate.Worker.ID < scored[j].candidate.Worker.ID
	})
	out := make([]Candidate, len(scored))
	for i, r := range scored {
		out[i] = r.candidate
	}
	return out, nil
}

// Select filters then ranks, returning the winning candidate. It reports
// ok=false (not an error) when no candidate satisfies the requirements.
func (p *Policy) Select(candidates []Candidate) (Candidate, bool, error) {
	filtered, err := p.Filter(candidates)
	if err != nil {
		return Candidate{}, false, err
	}
	if len(filtered) == 0 {
		return Candidate{}, false, nil
	}
	ranked, err := p.Rank(filtered)
	if err != nil {
		return Candidate{}, false, err
	}
	return ranked[0], true, nil
}
