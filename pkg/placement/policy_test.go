package placement

import (
	"testing"

	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worker(id, zone string, ncont int) Candidate {
	return Candidate{
		Worker:        types.Worker{ID: id, Tags: map[string]string{"zone": zone}, Host: id + ".example.com"},
		InstanceCount: ncont,
	}
}

func TestPolicyFilterKeepsOnlyMatchingRequirements(t *testing.T) {
	p, err := Compile(&types.PlacementOptions{Requirements: []string{`tags.zone == "us-east"`}})
	require.NoError(t, err)

	candidates := []Candidate{
		worker("a", "us-east", 0),
		worker("b", "us-west", 0),
	}
	filtered, err := p.Filter(candidates)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].Worker.ID)
}

func TestPolicyDefaultRankPicksFewestContainers(t *testing.T) {
	p, err := Compile(nil)
	require.NoError(t, err)

	candidates := []Candidate{
		worker("a", "us-east", 5),
		worker("b", "us-east", 1),
		worker("c", "us-east", 3),
	}
	winner, ok, err := p.Select(candidates)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", winner.Worker.ID)
}

func TestPolicyRankTieBreaksByWorkerID(t *testing.T) {
	p, err := Compile(nil)
	require.NoError(t, err)

	candidates := []Candidate{
		worker("z", "us-east", 1),
		worker("a", "us-east", 1),
	}
	ranked, err := p.Rank(candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Worker.ID)
}

func TestPolicySelectReturnsFalseWhenNoCandidateMatches(t *testing.T) {
	p, err := Compile(&types.PlacementOptions{Requirements: []string{`tags.zone == "eu-west"`}})
	require.NoError(t, err)

	candidates := []Candidate{worker("a", "us-east", 0)}
	_, ok, err := p.Select(candidates)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyCustomRankExpression(t *testing.T) {
	p, err := Compile(&types.PlacementOptions{Rank: "ncont * 2"})
	require.NoError(t, err)

	candidates := []Candidate{
		worker("a", "us-east", 3),
		worker("b", "us-east", 1),
	}
	winner, ok, err := p.Select(candidates)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", winner.Worker.ID)
}

func TestCompileRejectsInvalidRequirement(t *testing.T) {
	_, err := Compile(&types.PlacementOptions{Requirements: []string{"tags.zone =="}})
	assert.Error(t, err)
}
