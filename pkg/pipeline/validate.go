package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrMissingInput is returned when an input volume does not exist or is not a regular file.
	ErrMissingInput = errors.New("input file does not exist")

	// ErrOutputExists is returned when an output exists and overwriting was not requested.
	ErrOutputExists = errors.New("output file already exists, use -f to overwrite")

	// ErrOutputDir is returned when an output's parent directory is missing or the output is a directory.
	ErrOutputDir = errors.New("invalid output location")

	// ErrDuplicateOutput is returned when two outputs share a path.
	ErrDuplicateOutput = errors.New("output paths must be distinct")

	// ErrGridMismatch is returned when the input volumes are not on the same voxel grid.
	ErrGridMismatch = errors.New("input volumes are not on the same grid")
)

// assertInputsExist checks that every path is an existing regular file.
func assertInputsExist(paths ...string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", ErrMissingInput, path)
		}
	}
	return nil
}

// assertOutputsWritable checks that no output exists unless overwrite is set,
// that each parent directory exists and that the outputs are distinct.
func assertOutputsWritable(overwrite bool, paths ...string) error {
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrOutputDir, path, err)
		}
		if prev, ok := seen[abs]; ok {
			return fmt.Errorf("%w: %s and %s", ErrDuplicateOutput, prev, path)
		}
		seen[abs] = path

		if info, err := os.Stat(path); err == nil {
			if info.IsDir() {
				return fmt.Errorf("%w: %s is a directory", ErrOutputDir, path)
			}
			if !overwrite {
				return fmt.Errorf("%w: %s", ErrOutputExists, path)
			}
		}

		dir := filepath.Dir(path)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: directory %s does not exist", ErrOutputDir, dir)
		}
	}
	return nil
}
