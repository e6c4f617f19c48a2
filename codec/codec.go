// Package codec centralizes payload encoding for persisted files.
//
// Codec selection is a compatibility boundary: persisted files record the
// codec name in their header and are opened by selecting the codec by name,
// so bytes written by an older codec always decode with the codec that
// produced them.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used for newly created files. Existing files are
// self-describing and never depend on this value.
var Default Codec = JSON{}
