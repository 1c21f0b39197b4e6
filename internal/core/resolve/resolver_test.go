package resolve

import (
	"testing"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conf(v float64) *float64 { return &v }

func ent(name, typ string, c float64, desc string, aliases ...string) model.ExtractedEntity {
	return model.ExtractedEntity{Name: name, Type: typ, Confidence: conf(c), Description: desc, Aliases: aliases}
}

func rel(src, tgt, typ string, c float64) model.ExtractedRelation {
	return model.ExtractedRelation{Source: src, Target: tgt, Type: typ, Confidence: conf(c)}
}

func TestMergesCaseAndWhitespaceVariants(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", ChunkIndex: 0, Entities: []model.ExtractedEntity{ent("Apache  Kafka", "technology", 0.4, "A log")}},
		{ChunkID: "c1", ChunkIndex: 1, Entities: []model.ExtractedEntity{ent("apache kafka", "Technology", 0.9, "A distributed log")}},
		{ChunkID: "c2", ChunkIndex: 2, Entities: []model.ExtractedEntity{ent(" APACHE KAFKA ", "TECHNOLOGY", 0.6, "")}},
	})

	require.Len(t, g.Nodes, 1)
	n := g.Nodes[0]
	assert.Equal(t, "Apache Kafka", n.Name)
	assert.Equal(t, "TECHNOLOGY", n.Type)
	assert.Equal(t, 0.9, n.Confidence)
	assert.Equal(t, "A distributed log", n.Description)
	assert.Equal(t, 3, n.Mentions)
	assert.Equal(t, []string{"c0", "c1", "c2"}, n.SourceChunkIDs)
}

func TestSameNameDifferentTypeStaysApart(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", Entities: []model.ExtractedEntity{ent("Apple", "ORGANIZATION", 0.8, ""), ent("apple", "FRUIT", 0.7, "")}},
	})
	assert.Len(t, g.Nodes, 2)
}

func TestAliasesMergeIntoOneNode(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", Entities: []model.ExtractedEntity{ent("Kubernetes", "TECHNOLOGY", 0.7, "", "K8s")}},
		{ChunkID: "c1", Entities: []model.ExtractedEntity{ent("k8s", "TECHNOLOGY", 0.8, "")},
			Relations: []model.ExtractedRelation{rel("K8S", "k8s", "SELF", 0.5)}},
	})

	require.Len(t, g.Nodes, 1)
	assert.Equal(t, []string{"K8s"}, g.Nodes[0].Aliases)
	assert.Equal(t, 0.8, g.Nodes[0].Confidence)
	require.Len(t, g.Edges, 1)
}

func TestEdgesMergeAndCountWeight(t *testing.T) {
	entities := []model.ExtractedEntity{ent("Go", "TECHNOLOGY", 0.9, ""), ent("Docker", "TECHNOLOGY", 0.9, "")}
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", Entities: entities, Relations: []model.ExtractedRelation{rel("Docker", "Go", "written in", 0.6)}},
		{ChunkID: "c1", Entities: entities, Relations: []model.ExtractedRelation{rel("docker", "GO", "WRITTEN_IN", 0.95)}},
		{ChunkID: "c2", Entities: entities, Relations: []model.ExtractedRelation{rel("Go", "Docker", "WRITTEN_IN", 0.5)}},
	})

	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 2)
	e := g.Edges[0]
	assert.Equal(t, "WRITTEN_IN", e.RelationType)
	assert.Equal(t, 2, e.Weight)
	assert.Equal(t, 0.95, e.Confidence)
	assert.Equal(t, g.Nodes[1].ID, e.SourceNodeID)
	assert.Equal(t, g.Nodes[0].ID, e.TargetNodeID)
	assert.Equal(t, 1, g.Edges[1].Weight)
}

func TestUnresolvedEndpointsAreDroppedAndCounted(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0",
			Entities: []model.ExtractedEntity{ent("Go", "TECHNOLOGY", 0.9, "")},
			Relations: []model.ExtractedRelation{
				rel("Go", "Rust", "COMPETES_WITH", 0.5),
				rel("Nobody", "Go", "USES", 0.5),
			}},
	})

	assert.Empty(t, g.Edges)
	assert.Equal(t, 2, g.DroppedRelations)
	assert.NoError(t, g.Validate())
}

func TestRelationsResolveAcrossChunks(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", Entities: []model.ExtractedEntity{ent("PostgreSQL", "TECHNOLOGY", 0.9, "")}},
		{ChunkID: "c1",
			Entities:  []model.ExtractedEntity{ent("Acme", "ORGANIZATION", 0.9, "")},
			Relations: []model.ExtractedRelation{rel("Acme", "postgresql", "USES", 0.7)}},
	})

	require.Len(t, g.Edges, 1)
	assert.NoError(t, g.Validate())
}

func TestChunkLocalTypePreferred(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", Entities: []model.ExtractedEntity{ent("Mercury", "PLANET", 0.9, "")}},
		{ChunkID: "c1",
			Entities:  []model.ExtractedEntity{ent("Mercury", "ELEMENT", 0.9, ""), ent("Thermometer", "PRODUCT", 0.9, "")},
			Relations: []model.ExtractedRelation{rel("Thermometer", "Mercury", "CONTAINS", 0.8)}},
	})

	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, g.Nodes[1].ID, g.Edges[0].TargetNodeID)
	assert.Equal(t, "ELEMENT", g.Nodes[1].Type)
}

func TestResolveIsDeterministic(t *testing.T) {
	in := []model.ChunkExtraction{
		{ChunkID: "c0", Entities: []model.ExtractedEntity{ent("A", "X", 0.5, ""), ent("B", "X", 0.5, "")},
			Relations: []model.ExtractedRelation{rel("A", "B", "R", 0.5)}},
	}
	assert.Equal(t, Resolve("doc", in), Resolve("doc", in))
	assert.NotEqual(t, Resolve("doc", in).Nodes[0].ID, Resolve("other", in).Nodes[0].ID)
}

func TestMissingConfidenceUsesDefault(t *testing.T) {
	g := Resolve("doc", []model.ChunkExtraction{
		{ChunkID: "c0", Entities: []model.ExtractedEntity{{Name: "Go", Type: "TECHNOLOGY"}}},
	})
	assert.Equal(t, model.DefaultConfidence, g.Nodes[0].Confidence)
}
