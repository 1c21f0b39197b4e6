package model

import "fmt"

type GraphEdge struct {
	ID           string  `json:"id"`
	SourceNodeID string  `json:"source_node_id"`
	TargetNodeID string  `json:"target_node_id"`
	RelationType string  `json:"relation_type"`
	Description  string  `json:"description,omitempty"`
	Weight       int     `json:"weight"`
	Confidence   float64 `json:"confidence"`
}

// ResolvedGraph is the deduplicated node and edge set of one document.
type ResolvedGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`

	// DroppedRelations counts relations whose endpoints never resolved to a node.
	DroppedRelations int `json:"dropped_relations"`
}

// Validate reports the first edge whose endpoints are missing from the node set.
func (g *ResolvedGraph) Validate() error {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := ids[e.SourceNodeID]; !ok {
			return fmt.Errorf("edge %s: dangling source node %s", e.ID, e.SourceNodeID)
		}
		if _, ok := ids[e.TargetNodeID]; !ok {
			return fmt.Errorf("edge %s: dangling target node %s", e.ID, e.TargetNodeID)
		}
	}
	return nil
}
