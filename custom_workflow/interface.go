package custom_workflow

type Loader interface {
	// LoadFile reads a workflow from a .json file or from the text metadata
	// of a .png file.
	LoadFile(path string) (*Result, error)
	// Load is LoadFile for data already in memory; name is only used to pick
	// the format from its extension.
	Load(name string, data []byte) (*Result, error)
}
