package revision

// Origin records how a persona document came to be.
type Origin string

const (
	OriginSeed     Origin = "seed"
	OriginRevision Origin = "revision"
)

// SeedSource names where a seed document was taken from.
type SeedSource string

const (
	SeedCatalog   SeedSource = "catalog"
	SeedFile      SeedSource = "file"
	SeedGenerated SeedSource = "generated"
)

// Document is one version of a persona document. Version 0 is the seed.
type Document struct {
	Content    string     `json:"content"`
	Version    int        `json:"version"`
	Origin     Origin     `json:"origin"`
	Parent     int        `json:"parent"`
	SeedSource SeedSource `json:"seed_source,omitempty"`
	SeedRef    string     `json:"seed_ref,omitempty"`
}

// Seed builds the version 0 document.
func Seed(content string, source SeedSource, ref string) Document {
	return Document{
		Content:    content,
		Version:    0,
		Origin:     OriginSeed,
		Parent:     -1,
		SeedSource: source,
		SeedRef:    ref,
	}
}

// Next builds the revision that follows doc.
func (doc Document) Next(content string) Document {
	return Document{
		Content: content,
		Version: doc.Version + 1,
		Origin:  OriginRevision,
		Parent:  doc.Version,
	}
}
