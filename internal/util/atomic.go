// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path so that readers see either the old
// file or the complete new one. The data goes to a temp file in the target
// directory, is fsynced, chmodded to perm and renamed over path. Missing
// parent directories are created with mode 0700.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteFileAtomicDir(path, data, perm, 0o700)
}

// WriteFileAtomicDir is WriteFileAtomic with an explicit mode for created
// parent directories.
func WriteFileAtomicDir(path string, data []byte, perm, dirPerm os.FileMode) (err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Same directory, so the rename never crosses filesystems.
	f, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	// Windows refuses to rename an open file.
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, abs); err != nil {
		return fmt.Errorf("rename into %s: %w", abs, err)
	}
	return nil
}
