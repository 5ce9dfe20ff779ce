package vfs

import (
	"sort"
	"time"
)

// FileEntry is one row of a folder listing.
type FileEntry struct {
	Name         string     `json:"name"`
	FullPath     string     `json:"fullPath"`     // object key or folder prefix
	RelativePath string     `json:"relativePath"` // virtual path, folder form for folders
	IsFolder     bool       `json:"isFolder"`
	Size         *int64     `json:"size,omitempty"`
	Updated      *time.Time `json:"updated,omitempty"`
}

// SortEntries orders folders before files, then by name. Name comparison
// is byte-wise and case-sensitive.
func SortEntries(entries []FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsFolder != entries[j].IsFolder {
			return entries[i].IsFolder
		}
		return entries[i].Name < entries[j].Name
	})
}
