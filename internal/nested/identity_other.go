//go:build !unix

package nested

import "os"

type fileID struct{}

func identity(os.FileInfo) (fileID, bool) { return fileID{}, false }
