package common

import (
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
)

// EnsureDir creates dir, and any missing parents, if it does not exist yet.
func EnsureDir(dir string, mode os.FileMode) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, mode); err != nil {
			return errors.Wrapf(err, "failed to create directory %v", dir)
		}
	}
	return nil
}

// FileExists returns true if path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteFileAtomic writes newBytes to filePath through a temporary file and a
// rename. A previous version of the file is kept as filePath.bak.
func WriteFileAtomic(filePath string, newBytes []byte, mode os.FileMode) error {
	if FileExists(filePath) {
		old, err := ioutil.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "could not read file %v", filePath)
		}
		if err = ioutil.WriteFile(filePath+".bak", old, mode); err != nil {
			return errors.Wrapf(err, "could not write file %v", filePath+".bak")
		}
	}
	tmp := filePath + ".new"
	if err := ioutil.WriteFile(tmp, newBytes, mode); err != nil {
		return errors.Wrapf(err, "could not write file %v", tmp)
	}
	return errors.Wrap(os.Rename(tmp, filePath), "rename")
}
