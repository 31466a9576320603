package blob

import (
	"materialcore/internal/infra/blob/fs"
)

// NewFilesystem returns a Store writing below root (default ./blobdata).
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
