package graph

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/registry"
)

func newRegistry(t *testing.T, targets ...models.Target) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, tgt := range targets {
		require.NoError(t, r.Register(tgt))
	}
	return r
}

func buildPipeline(t *testing.T) *Graph {
	t.Helper()
	g, err := Build(newRegistry(t,
		registry.Define("Clean", registry.Before("Restore")),
		registry.Define("Restore"),
		registry.Define("Compile", registry.DependsOn("Restore")),
		registry.Define("Test", registry.DependsOn("Compile"), registry.Produces("test-results/*.trx")),
		registry.Define("Coverage", registry.DependsOn("Test"), registry.TriggeredBy("Test"), registry.Consumes("Test")),
	))
	require.NoError(t, err)
	return g
}

func TestBuild_Acyclic(t *testing.T) {
	g := buildPipeline(t)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []string{"Restore"}, g.Dependencies("compile"))
	assert.Equal(t, []string{"Test"}, g.Dependents("Compile"))
	assert.Equal(t, []string{"Test"}, g.TriggerSources("Coverage"))
	assert.Equal(t, []string{"Compile", "Test", "Coverage"}, g.TransitiveDependents("Restore"))
}

func TestBuild_FreezesRegistry(t *testing.T) {
	r := newRegistry(t, registry.Define("A"))
	_, err := Build(r)
	require.NoError(t, err)
	assert.True(t, r.Frozen())
}

func TestBuild_Cycles(t *testing.T) {
	tests := []struct {
		name    string
		targets []models.Target
		onCycle []string
	}{
		{
			name: "dependsOn cycle",
			targets: []models.Target{
				registry.Define("A", registry.DependsOn("C")),
				registry.Define("B", registry.DependsOn("A")),
				registry.Define("C", registry.DependsOn("B")),
			},
			onCycle: []string{"A", "B", "C"},
		},
		{
			name: "self dependency",
			targets: []models.Target{
				registry.Define("A", registry.DependsOn("a")),
			},
			onCycle: []string{"A"},
		},
		{
			name: "after contradicts dependsOn",
			targets: []models.Target{
				registry.Define("A"),
				registry.Define("B", registry.DependsOn("A")),
				registry.Define("C", registry.DependsOn("B"), registry.Before("A")),
			},
			onCycle: []string{"A", "B", "C"},
		},
		{
			name: "before and after loop",
			targets: []models.Target{
				registry.Define("Build", registry.Before("Push")),
				registry.Define("Push", registry.Before("Build")),
			},
			onCycle: []string{"Build", "Push"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(newRegistry(t, tt.targets...))
			var cycle *CycleError
			require.ErrorAs(t, err, &cycle)
			for _, name := range tt.onCycle {
				assert.True(t, cycle.Contains(name), "%s should be on cycle %v", name, cycle.Path)
			}
			assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1], "cycle path must be closed")
			assert.Contains(t, err.Error(), "dependency cycle:")
		})
	}
}

func TestBuild_TriggerCycleIsNotStructural(t *testing.T) {
	_, err := Build(newRegistry(t,
		registry.Define("A", registry.TriggeredBy("B")),
		registry.Define("B", registry.TriggeredBy("A")),
	))
	assert.NoError(t, err)
}

func TestBuild_UnknownReferences(t *testing.T) {
	tests := []struct {
		name     string
		target   models.Target
		relation string
	}{
		{"dependsOn", registry.Define("X", registry.DependsOn("Missing")), "dependsOn"},
		{"before", registry.Define("X", registry.Before("Missing")), "before"},
		{"after", registry.Define("X", registry.After("Missing")), "after"},
		{"triggeredBy", registry.Define("X", registry.TriggeredBy("Missing")), "triggeredBy"},
		{"triggers", registry.Define("X", registry.Triggers("Missing")), "triggers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(newRegistry(t, tt.target))
			var unknown *registry.UnknownTargetError
			require.ErrorAs(t, err, &unknown)
			assert.Equal(t, "X", unknown.Referrer)
			assert.Equal(t, "Missing", unknown.Name)
			assert.Equal(t, tt.relation, unknown.Relation)
		})
	}
}

func TestBuild_ConsumesResolvesTargetNames(t *testing.T) {
	g := buildPipeline(t)
	assert.Equal(t, []string{"test-results/*.trx"}, g.Consumes("Coverage"))

	g2, err := Build(newRegistry(t, registry.Define("Pack", registry.Consumes("bin/**/*.dll"))))
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/**/*.dll"}, g2.Consumes("Pack"))
}

func TestTriggersIsInverseOfTriggeredBy(t *testing.T) {
	g, err := Build(newRegistry(t,
		registry.Define("Test", registry.Triggers("Report")),
		registry.Define("Report"),
	))
	require.NoError(t, err)

	test, _ := g.ID("Test")
	report, _ := g.ID("Report")
	assert.Equal(t, []int{report}, g.TriggeredIDs(test))
	assert.Equal(t, []int{test}, g.TriggerSourceIDs(report))
}

func TestLookup(t *testing.T) {
	g := buildPipeline(t)

	tgt, err := g.Lookup("COVERAGE")
	require.NoError(t, err)
	assert.Equal(t, "Coverage", tgt.Name)

	_, err = g.Lookup("Publish")
	var unknown *registry.UnknownTargetError
	assert.ErrorAs(t, err, &unknown)
}

func TestWriteDot(t *testing.T) {
	g := buildPipeline(t)

	var buf bytes.Buffer
	require.NoError(t, g.WriteDot(&buf, "build", "Compile"))

	gold := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	gold.Assert(t, "dot_build", buf.Bytes())
}
