// Package protocol defines the HTTP API request and response bodies.
package protocol

import "github.com/sdisaacson/desktop/internal/vfs"

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// NavigateRequest is the body for POST .../files/navigate
type NavigateRequest struct {
	Path string `json:"path"`
}

// CreateFolderRequest is the body for POST .../files/folders
type CreateFolderRequest struct {
	Name string `json:"name"`
}

// EntryRequest names one listed entry by virtual path.
type EntryRequest struct {
	Path     string `json:"path"`
	IsFolder bool   `json:"isFolder"`
}

// RenameRequest is the body for POST .../files/rename
type RenameRequest struct {
	EntryRequest
	NewName string `json:"newName"`
}

// MoveRequest is the body for POST .../files/move
type MoveRequest struct {
	EntryRequest
	Destination string `json:"destination"`
}

// SelectionMoveRequest is the body for POST .../files/selection/move
type SelectionMoveRequest struct {
	Destination string `json:"destination"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// SearchResponse lists the entries matching a glob pattern.
type SearchResponse struct {
	Folder  string          `json:"folder"`
	Pattern string          `json:"pattern"`
	Entries []vfs.FileEntry `json:"entries"`
}
