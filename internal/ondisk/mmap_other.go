// Copyright 2026 The chd Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !linux && !darwin

package ondisk

// OpenMmap falls back to pread(2) where memory maps aren't wired up.
func OpenMmap(path string) (Source, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
