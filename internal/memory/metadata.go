package memory

// Flattening between the typed Metadata record and the map form stored
// in the vector payload. Well-known keys are lifted into struct fields
// on the way back in; unrecognised keys land in Extra.

const (
	keyCreatedAt          = "created_at"
	keyUpdatedAt          = "updated_at"
	keySource             = "source"
	keySourceType         = "source_type"
	keyContentType        = "content_type"
	keyType               = "type"
	keyLanguage           = "language"
	keyKeywords           = "keywords"
	keyEntities           = "entities"
	keyEntityLabels       = "entity_labels"
	keyContentHash        = "content_hash"
	keyWordCount          = "word_count"
	keyCharCount          = "char_count"
	keyChunkIndex         = "chunk_index"
	keyTotalChunks        = "total_chunks"
	keyLabels             = "labels"
	keyRepoOwner          = "repo_owner"
	keyRepoName           = "repo_name"
	keyRepoURL            = "repo_url"
	keyFilePath           = "file_path"
	keyFileExtension      = "file_extension"
	keyFileLanguage       = "file_language"
	keyCommitSHA          = "commit_sha"
	keyCommitDate         = "commit_date"
	keyLastModifiedCommit = "last_modified_commit"
	keyLastModifiedDate   = "last_modified_date"
	keyLastModifiedAuthor = "last_modified_author"
	keyCategory           = "category"
	keyIndexedAt          = "indexed_at"
)

// Map flattens the metadata into the payload form. Zero values are
// omitted so payloads stay small.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, 16)

	setStr := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	setInt := func(k string, v int) {
		if v != 0 {
			out[k] = v
		}
	}

	setStr(keyCreatedAt, m.CreatedAt)
	setStr(keyUpdatedAt, m.UpdatedAt)
	setStr(keySource, m.Source)
	setStr(keySourceType, m.SourceType)
	setStr(keyContentType, m.ContentType)
	setStr(keyType, m.Type)
	setStr(keyLanguage, m.Language)
	setStr(keyContentHash, m.ContentHash)
	setInt(keyWordCount, m.WordCount)
	setInt(keyCharCount, m.CharCount)
	setInt(keyChunkIndex, m.ChunkIndex)
	if m.TotalChunks != 0 {
		out[keyChunkIndex] = m.ChunkIndex
		out[keyTotalChunks] = m.TotalChunks
	}
	setStr(keyRepoOwner, m.RepoOwner)
	setStr(keyRepoName, m.RepoName)
	setStr(keyRepoURL, m.RepoURL)
	setStr(keyFilePath, m.FilePath)
	setStr(keyFileExtension, m.FileExtension)
	setStr(keyFileLanguage, m.FileLanguage)
	setStr(keyCommitSHA, m.CommitSHA)
	setStr(keyCommitDate, m.CommitDate)
	setStr(keyLastModifiedCommit, m.LastModifiedCommit)
	setStr(keyLastModifiedDate, m.LastModifiedDate)
	setStr(keyLastModifiedAuthor, m.LastModifiedAuthor)
	setStr(keyCategory, m.Category)
	setStr(keyIndexedAt, m.IndexedAt)

	if len(m.Keywords) > 0 {
		out[keyKeywords] = toAnySlice(m.Keywords)
	}
	if len(m.EntityLabels) > 0 {
		out[keyEntityLabels] = toAnySlice(m.EntityLabels)
	}
	if len(m.Labels) > 0 {
		out[keyLabels] = toAnySlice(m.Labels)
	}
	if !m.Entities.Empty() {
		ents := make(map[string]any, 3)
		if len(m.Entities.People) > 0 {
			ents["people"] = toAnySlice(m.Entities.People)
		}
		if len(m.Entities.Organizations) > 0 {
			ents["organizations"] = toAnySlice(m.Entities.Organizations)
		}
		if len(m.Entities.Locations) > 0 {
			ents["locations"] = toAnySlice(m.Entities.Locations)
		}
		out[keyEntities] = ents
	}

	for k, v := range m.Extra {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}

	return out
}

// MetadataFromMap rebuilds a Metadata record from its payload form.
func MetadataFromMap(p map[string]any) Metadata {
	var m Metadata
	if p == nil {
		return m
	}

	consumed := make(map[string]bool, len(p))
	str := func(k string) string {
		if v, ok := p[k].(string); ok {
			consumed[k] = true
			return v
		}
		return ""
	}
	num := func(k string) int {
		switch v := p[k].(type) {
		case int:
			consumed[k] = true
			return v
		case int64:
			consumed[k] = true
			return int(v)
		case float64:
			consumed[k] = true
			return int(v)
		}
		return 0
	}
	strs := func(k string) []string {
		v, ok := p[k]
		if !ok {
			return nil
		}
		consumed[k] = true
		return toStringSlice(v)
	}

	m.CreatedAt = str(keyCreatedAt)
	m.UpdatedAt = str(keyUpdatedAt)
	m.Source = str(keySource)
	m.SourceType = str(keySourceType)
	m.ContentType = str(keyContentType)
	m.Type = str(keyType)
	m.Language = str(keyLanguage)
	m.ContentHash = str(keyContentHash)
	m.WordCount = num(keyWordCount)
	m.CharCount = num(keyCharCount)
	m.ChunkIndex = num(keyChunkIndex)
	m.TotalChunks = num(keyTotalChunks)
	m.Keywords = strs(keyKeywords)
	m.EntityLabels = strs(keyEntityLabels)
	m.Labels = strs(keyLabels)
	m.RepoOwner = str(keyRepoOwner)
	m.RepoName = str(keyRepoName)
	m.RepoURL = str(keyRepoURL)
	m.FilePath = str(keyFilePath)
	m.FileExtension = str(keyFileExtension)
	m.FileLanguage = str(keyFileLanguage)
	m.CommitSHA = str(keyCommitSHA)
	m.CommitDate = str(keyCommitDate)
	m.LastModifiedCommit = str(keyLastModifiedCommit)
	m.LastModifiedDate = str(keyLastModifiedDate)
	m.LastModifiedAuthor = str(keyLastModifiedAuthor)
	m.Category = str(keyCategory)
	m.IndexedAt = str(keyIndexedAt)

	if ents, ok := p[keyEntities].(map[string]any); ok {
		consumed[keyEntities] = true
		m.Entities = Entities{
			People:        toStringSlice(ents["people"]),
			Organizations: toStringSlice(ents["organizations"]),
			Locations:     toStringSlice(ents["locations"]),
		}
	}

	for k, v := range p {
		if consumed[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}

	return m
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
