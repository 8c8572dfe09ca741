package pedigree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTreeEmptyAndExhausted(t *testing.T) {
	ctx := context.Background()
	pop := literalPopulation()

	node, err := BuildTree(ctx, "", pop, 10, nil)
	require.NoError(t, err)
	assert.Nil(t, node)

	node, err = BuildTree(ctx, "X", pop, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, node)

	node, err = BuildTree(ctx, "missing", pop, 10, nil)
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestBuildTreeRespectsDepth(t *testing.T) {
	ctx := context.Background()
	pop := literalPopulation()

	node, err := BuildTree(ctx, "X", pop, 2, nil)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, 2, node.Depth())
	assert.Equal(t, "A", node.Sire.ID)
	assert.Nil(t, node.Sire.Sire)

	node, err = BuildTree(ctx, "X", pop, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, node.Depth())
	assert.Equal(t, "name-X", node.Name)
}

func TestBuildTreeKeepsRepeatedAncestorsOnEveryBranch(t *testing.T) {
	node, err := BuildTree(context.Background(), "X", literalPopulation(), 50, nil)
	require.NoError(t, err)

	var ids []string
	for _, n := range Flatten(node) {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"X", "A", "S", "D", "B", "S", "D"}, ids)
}

func TestBuildTreeStopsSelfReference(t *testing.T) {
	pop := NewPopulation(rec("X", "X", "D"), rec("D", "", ""))
	f := newCountingFetcher(pop)

	node, err := BuildTree(context.Background(), "X", f, 50, nil)
	require.NoError(t, err)
	require.NotNil(t, node.Sire)
	assert.Equal(t, "X", node.Sire.ID)
	assert.Nil(t, node.Sire.Sire)
	assert.Nil(t, node.Sire.Dam)
	assert.Zero(t, node.Sire.Inbreeding)
	assert.Equal(t, 1, f.count("X"), "cycle terminal must not trigger another lookup")
}

func TestBuildTreeBreaksLongerCycles(t *testing.T) {
	pop := NewPopulation(rec("A", "B", ""), rec("B", "C", ""), rec("C", "A", ""))
	node, err := BuildTree(context.Background(), "A", pop, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, node.Depth())
	assert.Equal(t, "A", node.Sire.Sire.Sire.ID)
	assert.Nil(t, node.Sire.Sire.Sire.Sire)
}

func TestBuildTreeVisitedIsBranchScoped(t *testing.T) {
	visited := map[string]struct{}{}
	node, err := BuildTree(context.Background(), "X", literalPopulation(), 50, visited)
	require.NoError(t, err)
	assert.Empty(t, visited, "visited entries must be released on return")
	require.NotNil(t, node.Dam.Sire)
	assert.Equal(t, "S", node.Dam.Sire.ID, "sibling branch must be able to expand S again")
}

func TestBuildTreePropagatesFetchErrors(t *testing.T) {
	boom := errors.New("source down")
	f := FetchFunc(func(_ context.Context, id string) (Record, bool, error) {
		if id == "A" {
			return Record{}, false, boom
		}
		return literalPopulation().Lookup(context.Background(), id)
	})
	_, err := BuildTree(context.Background(), "X", f, 50, nil)
	require.ErrorIs(t, err, boom)
}

func TestBuildTreeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildTree(ctx, "X", literalPopulation(), 50, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFlattenNil(t *testing.T) {
	assert.Empty(t, Flatten(nil))
	var n *Node
	assert.Zero(t, n.Depth())
}
