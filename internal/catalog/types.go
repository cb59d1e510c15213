package catalog

// PersonaKind selects how persona names are rendered into prompts.
type PersonaKind string

const (
	KindPolitical PersonaKind = "political"
	KindCountry   PersonaKind = "country"
)

// File is the on-disk catalog schema.
type File struct {
	Version          int             `yaml:"version"`
	RevisionTemplate string          `yaml:"revision_template"`
	Tasks            map[string]Task `yaml:"tasks"`
}

// Task describes one survey benchmark and its prompt material.
type Task struct {
	PersonaKind        PersonaKind       `yaml:"persona_kind"`
	Personas           []string          `yaml:"personas"`
	DatasetPattern     string            `yaml:"dataset_pattern"`
	References         string            `yaml:"references"`
	ReferenceAnswerKey string            `yaml:"reference_answer_key"`
	SoulDir            string            `yaml:"soul_dir"`
	SoulTemplate       string            `yaml:"soul_template"`
	Souls              map[string]string `yaml:"souls"`
	StaticPrompts      map[string]string `yaml:"static_prompts"`
}
