package config

const DefaultExtractionPrompt = `You extract a knowledge graph from a document fragment.

Allowed entity types: %s
Preferred relation types: %s

Return only a JSON object that validates against this schema:
%s

Rules:
- Use the most complete name of each entity as "name" and list other spellings in "aliases".
- Relations must reference entity names that appear in "entities".
- Set "confidence" between 0 and 1.
- Do not invent facts that are not stated in the text.

TEXT:
%s`
