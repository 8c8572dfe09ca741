package pedigree

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 0.01

func individual(t *testing.T, pop Fetcher, id string, depth int) float64 {
	t.Helper()
	v, err := NewCalculator(pop).Individual(context.Background(), id, depth)
	require.NoError(t, err)
	return v
}

func pairing(t *testing.T, pop Fetcher, sire, dam string, depth int) float64 {
	t.Helper()
	v, err := NewCalculator(pop).Pairing(context.Background(), sire, dam, depth)
	require.NoError(t, err)
	return v
}

func TestIndividualKnownMatings(t *testing.T) {
	cases := []struct {
		name string
		pop  Population
		want float64
	}{
		{
			name: "no parents",
			pop:  NewPopulation(rec("X", "", "")),
			want: 0,
		},
		{
			name: "one parent missing",
			pop:  NewPopulation(rec("S", "", ""), rec("X", "S", "")),
			want: 0,
		},
		{
			name: "dangling parent ids",
			pop:  NewPopulation(rec("X", "ghost-sire", "ghost-dam")),
			want: 0,
		},
		{
			name: "unrelated lineages",
			pop: NewPopulation(
				rec("S1", "", ""), rec("D1", "", ""), rec("S2", "", ""), rec("D2", "", ""),
				rec("A", "S1", "D1"), rec("B", "S2", "D2"), rec("X", "A", "B"),
			),
			want: 0,
		},
		{
			name: "parent x offspring",
			pop: NewPopulation(
				rec("P", "", ""), rec("Q", "", ""),
				rec("C", "P", "Q"), rec("X", "P", "C"),
			),
			want: 25,
		},
		{
			name: "full siblings",
			pop:  literalPopulation(),
			want: 25,
		},
		{
			name: "half siblings",
			pop: NewPopulation(
				rec("S", "", ""), rec("D1", "", ""), rec("D2", "", ""),
				rec("A", "S", "D1"), rec("B", "S", "D2"), rec("X", "A", "B"),
			),
			want: 12.5,
		},
		{
			name: "grandparent x grandoffspring",
			pop: NewPopulation(
				rec("G", "", ""), rec("M1", "", ""), rec("M2", "", ""),
				rec("P", "G", "M1"), rec("C", "P", "M2"), rec("X", "G", "C"),
			),
			want: 12.5,
		},
		{
			name: "first cousins",
			pop: NewPopulation(
				rec("GS", "", ""), rec("GD", "", ""),
				rec("P1", "GS", "GD"), rec("P2", "GS", "GD"),
				rec("M1", "", ""), rec("M2", "", ""),
				rec("A", "P1", "M1"), rec("B", "M2", "P2"), rec("X", "A", "B"),
			),
			want: 6.25,
		},
		{
			name: "self mating",
			pop:  NewPopulation(rec("S", "", ""), rec("X", "S", "S")),
			want: 50,
		},
		{
			name: "double first cousins",
			pop: NewPopulation(
				rec("GS1", "", ""), rec("GD1", "", ""),
				rec("GS2", "", ""), rec("GD2", "", ""),
				rec("B1", "GS1", "GD1"), rec("B2", "GS1", "GD1"),
				rec("S1", "GS2", "GD2"), rec("S2", "GS2", "GD2"),
				rec("C1", "B1", "S1"), rec("C2", "B2", "S2"),
				rec("X", "C1", "C2"),
			),
			want: 12.5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, individual(t, tc.pop, "X", DefaultIndividualDepth), tolerance)
		})
	}
}

func TestIndividualLiteralScenario(t *testing.T) {
	pop := literalPopulation()
	assert.Equal(t, 25.00, individual(t, pop, "X", 3))
	assert.Equal(t, 25.00, individual(t, pop, "X", 50))
	assert.Equal(t, 0.00, individual(t, pop, "X", 2))
	assert.Equal(t, 25.0000, pairing(t, pop, "A", "B", 2))
	assert.Equal(t, 25.0000, pairing(t, pop, "A", "B", 5))
}

func TestIndividualMissingInputsAreZero(t *testing.T) {
	pop := literalPopulation()
	assert.Zero(t, individual(t, pop, "", 50))
	assert.Zero(t, individual(t, pop, "nobody", 50))
	assert.Zero(t, individual(t, pop, "S", 50))
}

func TestIndividualSelfParentRecordDoesNotLoop(t *testing.T) {
	// A record naming itself as both parents must terminate and never count
	// the subject as its own ancestor.
	pop := NewPopulation(rec("X", "X", "X"))
	type outcome struct {
		v   float64
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := NewCalculator(pop).Individual(context.Background(), "X", DefaultIndividualDepth)
		done <- outcome{v, err}
	}()
	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.Zero(t, o.v)
	case <-time.After(5 * time.Second):
		t.Fatal("self-referencing record did not terminate")
	}
}

func TestIndividualDepthMonotonic(t *testing.T) {
	pop := NewPopulation(
		rec("GS", "", ""), rec("GD", "", ""),
		rec("P1", "GS", "GD"), rec("P2", "GS", "GD"),
		rec("M1", "", ""), rec("M2", "", ""),
		rec("A", "P1", "M1"), rec("B", "M2", "P2"), rec("X", "A", "B"),
	)
	prev := -1.0
	for depth := 0; depth <= 6; depth++ {
		v := individual(t, pop, "X", depth)
		assert.GreaterOrEqual(t, v, prev, "depth %d", depth)
		prev = v
		if depth < 4 {
			assert.Zero(t, v, "depth %d is below the shared grandparents", depth)
		} else {
			assert.InDelta(t, 6.25, v, tolerance, "depth %d", depth)
		}
	}
}

func TestIndividualIdempotent(t *testing.T) {
	pop := literalPopulation()
	first := individual(t, pop, "X", 50)
	second := individual(t, pop, "X", 50)
	assert.Equal(t, first, second)
}

func TestPairingMatchesRecordedOffspring(t *testing.T) {
	pops := []Population{
		literalPopulation(),
		NewPopulation(
			rec("GS", "", ""), rec("GD", "", ""),
			rec("P1", "GS", "GD"), rec("P2", "GS", "GD"),
			rec("M1", "", ""), rec("M2", "", ""),
			rec("A", "P1", "M1"), rec("B", "M2", "P2"), rec("X", "A", "B"),
		),
	}
	for _, pop := range pops {
		for depth := 1; depth <= 6; depth++ {
			want := individual(t, pop, "X", depth+1)
			got := pairing(t, pop, "A", "B", depth)
			assert.InDelta(t, want, got, tolerance, "depth %d", depth)
		}
	}
}

func TestPairingEdgeCases(t *testing.T) {
	pop := literalPopulation()
	assert.Zero(t, pairing(t, pop, "", "B", 5))
	assert.Zero(t, pairing(t, pop, "A", "", 5))
	assert.Zero(t, pairing(t, pop, "A", "nobody", 5))
	assert.Zero(t, pairing(t, pop, "S", "D", 5))
	assert.Equal(t, 50.0, pairing(t, pop, "S", "S", 5))
	assert.Zero(t, pairing(t, pop, "A", "B", 1))
}

func TestPairingKeepsFourDecimals(t *testing.T) {
	// Third cousins share one ancestor pair seven generations apart:
	// 2 * (1/2)^9 = 0.390625%.
	pop := NewPopulation(
		rec("GS", "", ""), rec("GD", "", ""),
		rec("A1", "GS", "GD"), rec("B1", "GS", "GD"),
		rec("A2", "A1", ""), rec("B2", "B1", ""),
		rec("A3", "A2", ""), rec("B3", "B2", ""),
		rec("A4", "A3", ""), rec("B4", "B3", ""),
	)
	assert.Equal(t, 0.3906, pairing(t, pop, "A4", "B4", 10))

	pop["X"] = rec("X", "A4", "B4")
	assert.Equal(t, 0.39, individual(t, pop, "X", 11))
}

func TestExplainBreakdown(t *testing.T) {
	b, err := NewCalculator(literalPopulation()).Explain(context.Background(), "A", "B", 5)
	require.NoError(t, err)
	require.Len(t, b.Contributions, 2)
	assert.Equal(t, "S", b.Contributions[0].Ancestor.ID)
	assert.Equal(t, "name-S", b.Contributions[0].Ancestor.Name)
	assert.Equal(t, 1, b.Contributions[0].SirePaths)
	assert.Equal(t, 1, b.Contributions[0].DamPaths)
	assert.InDelta(t, 0.125, b.Contributions[0].Fraction, 1e-12)
	assert.InDelta(t, 25.0, b.Percentage, 1e-9)
	assert.Equal(t, "A", b.SireID)
	assert.Equal(t, 5, b.Depth)
}

func TestNegativeDepth(t *testing.T) {
	calc := NewCalculator(literalPopulation())
	_, err := calc.Individual(context.Background(), "X", -1)
	require.ErrorIs(t, err, ErrDepth)
	_, err = calc.Pairing(context.Background(), "A", "B", -1)
	require.ErrorIs(t, err, ErrDepth)
}

func TestCalculatorPropagatesSourceFailures(t *testing.T) {
	boom := errors.New("transient")
	f := FetchFunc(func(context.Context, string) (Record, bool, error) {
		return Record{}, false, boom
	})
	calc := NewCalculator(f)
	_, err := calc.Individual(context.Background(), "X", 5)
	require.ErrorIs(t, err, boom)
	_, err = calc.Pairing(context.Background(), "A", "B", 5)
	require.ErrorIs(t, err, boom)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.39, Round(0.390625, 2))
	assert.Equal(t, 0.3906, Round(0.390625, 4))
	assert.Equal(t, 12.5, Round(12.499, 1))
}

func TestRepeatedFullSibLineMatchesPathEnumeration(t *testing.T) {
	ctx := context.Background()
	pop := fullSibLine(8)
	calc := NewCalculator(pop)

	sire, err := BuildTree(ctx, "a7", pop, 50, nil)
	require.NoError(t, err)
	dam, err := BuildTree(ctx, "b7", pop, 50, nil)
	require.NoError(t, err)
	want := enumeratedPercentage(sire, dam)

	b, err := calc.Explain(ctx, "a7", "b7", 50)
	require.NoError(t, err)
	assert.InDelta(t, want, b.Percentage, 1e-9)
	for _, c := range b.Contributions {
		assert.Equal(t, len(Paths(sire, c.Ancestor.ID)), c.SirePaths, c.Ancestor.ID)
		assert.Equal(t, len(Paths(dam, c.Ancestor.ID)), c.DamPaths, c.Ancestor.ID)
	}
	got, err := calc.Individual(ctx, "a8", 50)
	require.NoError(t, err)
	assert.Equal(t, Round(want, IndividualPrecision), got)
}

func TestDeepInbredLineCompletes(t *testing.T) {
	// a16's parents share the 30 ancestors a0..a14 and b0..b14. Each side
	// reaches an ancestor d generations up through 2^(d-1) paths, so every
	// side weighs 1/2 and every ancestor contributes 12.5%. Pairing the
	// 2^14 x 2^14 founder paths one by one would take billions of steps.
	start := time.Now()
	got, err := NewCalculator(fullSibLine(16)).Individual(context.Background(), "a16", 50)
	require.NoError(t, err)
	assert.Equal(t, 375.0, got)
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestIndividualHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCalculator(fullSibLine(10)).Individual(ctx, "a10", 50)
	require.ErrorIs(t, err, context.Canceled)
}
