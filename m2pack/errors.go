package m2pack

import (
	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
)

// NewSourceNotFoundError creates a source directory not found error
func NewSourceNotFoundError(path string, cause error) error {
	err := m2errors.ErrSourceNotFound.WithDetail("path", path)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}

// NewSourceFileNotFoundError creates a source archive not found error
func NewSourceFileNotFoundError(headerPath string) error {
	return m2errors.ErrSourceFileNotFound.WithDetail("headerPath", headerPath)
}

// NewMissingPairedFileError creates a missing paired file error
func NewMissingPairedFileError(headerPath, dataPath string) error {
	return m2errors.ErrMissingPairedFile.
		WithDetail("headerPath", headerPath).
		WithDetail("dataPath", dataPath)
}

// NewEntryNameEmptyError describes an entry skipped for having no name
func NewEntryNameEmptyError(archive string, id uint32) error {
	return m2errors.ErrEntryNameEmpty.
		WithDetail("archive", archive).
		WithDetail("id", id)
}

// NewRootFolderIDMissingError describes an entry whose root directory has no root folder id
func NewRootFolderIDMissingError(archive string, id uint32, name, rootDirectory string) error {
	return m2errors.ErrRootFolderIDMissing.
		WithDetail("archive", archive).
		WithDetail("id", id).
		WithDetail("name", name).
		WithDetail("rootDirectory", rootDirectory)
}
