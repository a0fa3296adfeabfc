package timeline

import "path/filepath"

// absPath resolves p to an absolute path so timelines remain portable
// regardless of the working directory the pipeline was invoked from
//.
func absPath(p string) (string, error) {
	return filepath.Abs(p)
}
