// Package resolve merges chunk level extractions into one graph per document.
//
// Two entities are the same node when their normalized names (case folded,
// whitespace collapsed) and normalized types match, either directly or through
// a declared alias. Merged nodes keep the longest description and the highest
// confidence seen. Relations merge on (source node, target node, type); their
// weight counts contributing mentions.
package resolve

import (
	"strings"

	"github.com/agenthands/docgraph/internal/core/model"
)

const unknownType = "UNKNOWN"

// NormalizeName is the identity form of an entity name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NormalizeType upper-cases a type label and joins its words with underscores.
func NormalizeType(t string) string {
	t = strings.ToUpper(strings.Join(strings.Fields(t), "_"))
	if t == "" {
		return unknownType
	}
	return t
}

func entityKey(name, typ string) string {
	return NormalizeName(name) + "\x00" + NormalizeType(typ)
}

type nodeAcc struct {
	key     string
	node    model.GraphNode
	aliases map[string]struct{}
	chunks  map[string]struct{}
}

type edgeAcc struct {
	key  string
	edge model.GraphEdge
}

type Resolver struct {
	documentID string

	nodes  []*nodeAcc
	byKey  map[string]*nodeAcc
	byName map[string][]*nodeAcc

	edges  []*edgeAcc
	byEdge map[string]*edgeAcc

	dropped int
}

// Resolve builds the graph of documentID. The output is deterministic for a
// given input order: nodes and edges appear in first-mention order.
func Resolve(documentID string, extractions []model.ChunkExtraction) *model.ResolvedGraph {
	r := &Resolver{
		documentID: documentID,
		byKey:      make(map[string]*nodeAcc),
		byName:     make(map[string][]*nodeAcc),
		byEdge:     make(map[string]*edgeAcc),
	}
	for _, ex := range extractions {
		r.add(ex)
	}
	return r.graph()
}

func (r *Resolver) add(ex model.ChunkExtraction) {
	// Names mentioned in this chunk resolve to this chunk's entities first.
	local := make(map[string]*nodeAcc)

	for _, e := range ex.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		n := r.lookup(e)
		if n == nil {
			n = r.create(e)
		}
		r.merge(n, e, ex.ChunkID)

		for _, name := range append([]string{e.Name}, e.Aliases...) {
			if k := NormalizeName(name); k != "" {
				if _, seen := local[k]; !seen {
					local[k] = n
				}
			}
		}
	}

	for _, rel := range ex.Relations {
		src := r.endpoint(rel.Source, local)
		tgt := r.endpoint(rel.Target, local)
		if src == nil || tgt == nil || strings.TrimSpace(rel.Type) == "" {
			r.dropped++
			continue
		}
		r.relate(src, tgt, rel)
	}
}

func (r *Resolver) lookup(e model.ExtractedEntity) *nodeAcc {
	if n, ok := r.byKey[entityKey(e.Name, e.Type)]; ok {
		return n
	}
	for _, alias := range e.Aliases {
		if n, ok := r.byKey[entityKey(alias, e.Type)]; ok {
			return n
		}
	}
	return nil
}

func (r *Resolver) create(e model.ExtractedEntity) *nodeAcc {
	key := entityKey(e.Name, e.Type)
	n := &nodeAcc{
		key: key,
		node: model.GraphNode{
			ID:   model.NodeID(r.documentID, key),
			Name: strings.Join(strings.Fields(e.Name), " "),
			Type: NormalizeType(e.Type),
		},
		aliases: make(map[string]struct{}),
		chunks:  make(map[string]struct{}),
	}
	r.nodes = append(r.nodes, n)
	return n
}

func (r *Resolver) merge(n *nodeAcc, e model.ExtractedEntity, chunkID string) {
	n.node.Mentions++
	if c := e.Score(); n.node.Mentions == 1 || c > n.node.Confidence {
		n.node.Confidence = c
	}
	if d := strings.TrimSpace(e.Description); len(d) > len(n.node.Description) {
		n.node.Description = d
	}
	if _, ok := n.chunks[chunkID]; !ok && chunkID != "" {
		n.chunks[chunkID] = struct{}{}
		n.node.SourceChunkIDs = append(n.node.SourceChunkIDs, chunkID)
	}

	for _, name := range append([]string{e.Name}, e.Aliases...) {
		norm := NormalizeName(name)
		if norm == "" {
			continue
		}
		if k := entityKey(name, n.node.Type); r.byKey[k] == nil {
			r.byKey[k] = n
		}
		if !containsNode(r.byName[norm], n) {
			r.byName[norm] = append(r.byName[norm], n)
		}
		if norm == NormalizeName(n.node.Name) {
			continue
		}
		if _, ok := n.aliases[norm]; !ok {
			n.aliases[norm] = struct{}{}
			n.node.Aliases = append(n.node.Aliases, strings.Join(strings.Fields(name), " "))
		}
	}
}

// endpoint resolves a relation endpoint by name: this chunk's entities first,
// then the first node mentioned anywhere under that name.
func (r *Resolver) endpoint(name string, local map[string]*nodeAcc) *nodeAcc {
	norm := NormalizeName(name)
	if norm == "" {
		return nil
	}
	if n, ok := local[norm]; ok {
		return n
	}
	if candidates := r.byName[norm]; len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

func (r *Resolver) relate(src, tgt *nodeAcc, rel model.ExtractedRelation) {
	typ := NormalizeType(rel.Type)
	key := src.key + "\x01" + tgt.key + "\x01" + typ

	acc, ok := r.byEdge[key]
	if !ok {
		acc = &edgeAcc{
			key: key,
			edge: model.GraphEdge{
				ID:           model.EdgeID(r.documentID, key),
				SourceNodeID: src.node.ID,
				TargetNodeID: tgt.node.ID,
				RelationType: typ,
			},
		}
		r.byEdge[key] = acc
		r.edges = append(r.edges, acc)
	}

	acc.edge.Weight++
	if c := rel.Score(); acc.edge.Weight == 1 || c > acc.edge.Confidence {
		acc.edge.Confidence = c
	}
	if d := strings.TrimSpace(rel.Description); len(d) > len(acc.edge.Description) {
		acc.edge.Description = d
	}
}

func (r *Resolver) graph() *model.ResolvedGraph {
	g := &model.ResolvedGraph{
		Nodes:            make([]model.GraphNode, len(r.nodes)),
		Edges:            make([]model.GraphEdge, len(r.edges)),
		DroppedRelations: r.dropped,
	}
	for i, n := range r.nodes {
		g.Nodes[i] = n.node
	}
	for i, e := range r.edges {
		g.Edges[i] = e.edge
	}
	return g
}

func containsNode(list []*nodeAcc, n *nodeAcc) bool {
	for _, x := range list {
		if x == n {
			return true
		}
	}
	return false
}
