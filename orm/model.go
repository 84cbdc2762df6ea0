package orm

// Model is an entity that can be serialized and validated.
type Model interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
	Validate() error
}

// VersionedModel is a model that carries the version of the snapshot it
// represents.
type VersionedModel interface {
	Model
	GetVersion() uint32
	SetVersion(uint32)
}
