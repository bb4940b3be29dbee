package history

import "go.trai.ch/memo/internal/fsutil"

// SetRename replaces the publish step of the atomic write.
func (s *FileStore) SetRename(rename fsutil.RenameFunc) {
	s.rename = rename
}

// EntryPath exposes the file location of a task identity.
func (s *FileStore) EntryPath(taskIdentity string) string {
	return s.entryPath(taskIdentity)
}
