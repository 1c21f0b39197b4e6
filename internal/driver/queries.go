package driver

var indexQueries = []string{
	"CREATE INDEX ON :Entity(id);",
	"CREATE INDEX ON :Entity(document_id);",
	"CREATE INDEX ON :Chunk(id);",
	"CREATE INDEX ON :Chunk(document_id);",
	"CREATE INDEX ON :Document(id);",
}

const (
	SaveNodesQuery = `
		UNWIND $rows AS row
		MERGE (n:Entity {id: row.id})
		SET n.name = row.name,
			n.type = row.type,
			n.description = row.description,
			n.confidence = row.confidence,
			n.aliases = row.aliases,
			n.mentions = row.mentions,
			n.document_id = row.document_id,
			n.embedding = row.embedding
		RETURN count(n) AS saved
	`

	SaveEdgesQuery = `
		UNWIND $rows AS row
		MATCH (source:Entity {id: row.source_id})
		MATCH (target:Entity {id: row.target_id})
		MERGE (source)-[e:RELATES_TO {id: row.id}]->(target)
		SET e.type = row.type,
			e.description = row.description,
			e.weight = row.weight,
			e.confidence = row.confidence,
			e.document_id = row.document_id
		RETURN count(e) AS saved
	`

	SaveChunksQuery = `
		UNWIND $rows AS row
		MERGE (c:Chunk {id: row.id})
		SET c.document_id = row.document_id,
			c.text = row.text,
			c.index = row.index,
			c.embedding = row.embedding
		RETURN count(c) AS saved
	`

	LinkMentionsQuery = `
		UNWIND $rows AS row
		MATCH (c:Chunk {id: row.chunk_id})
		MATCH (n:Entity {id: row.node_id})
		MERGE (c)-[m:MENTIONS]->(n)
		RETURN count(m) AS saved
	`

	SaveDocumentQuery = `
		MERGE (d:Document {id: $id})
		SET d.filename = $filename,
			d.file_type = $file_type,
			d.file_size = $file_size,
			d.status = $status,
			d.uploaded_at = $uploaded_at,
			d.metadata = $metadata
		RETURN d.id AS id
	`

	LinkDocumentChunksQuery = `
		MATCH (d:Document {id: $id})
		UNWIND $chunk_ids AS chunk_id
		MATCH (c:Chunk {id: chunk_id})
		MERGE (d)-[h:HAS_CHUNK]->(c)
		RETURN count(h) AS saved
	`
)
