package index

// NoteIndex is the full surface of the persistent index. Callers outside
// this package take the interface, which keeps them mockable.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string) error
	ReplaceResolution(links []LinkRow, dangling []DanglingRow) error
	DeleteNote(path string) error
	GetNote(path string) (*NoteRow, error)
	ListNotes(limit, offset int, tag, sort string) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Backlinks(target string) ([]string, error)
	RefsOf(path string) ([]RefRow, error)
	AllRefs() (map[string][]RefRow, error)
	AllMeta() (map[string]NoteRow, error)
	Dangling() ([]DanglingRow, error)
	Tags() ([]TagCount, error)
	RecordParseError(path, message string) error
	DeleteParseError(path string) error
	ParseErrors() ([]ParseErrorRow, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
