package repository

import (
	"os"
	"path/filepath"

	dserrors "github.com/systmms/secvault/internal/errors"
)

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, keeping the original file mode when there is one.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return dserrors.Configuration("persist secrets", "cannot create temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return dserrors.Configuration("persist secrets", "cannot write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return dserrors.Configuration("persist secrets", "cannot sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return dserrors.Configuration("persist secrets", "cannot close temp file", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		cleanup()
		return dserrors.Configuration("persist secrets", "cannot set file mode", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return dserrors.Configuration("persist secrets", "cannot replace "+path, err)
	}
	return nil
}
