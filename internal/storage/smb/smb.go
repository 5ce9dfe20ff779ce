// Package smb stores objects on an SMB/CIFS share. The share must already
// be mounted on the host (mount.cifs or fstab); all I/O goes through the
// local backend rooted at the mount point.
package smb

import (
	"encoding/json"
	"fmt"

	"github.com/sdisaacson/desktop/internal/storage/local"
)

// Config holds SMB backend settings. Server and Domain are informational;
// only MountPath is used for I/O.
type Config struct {
	Server    string `json:"server"` // e.g. //fileserver/desktop
	Domain    string `json:"domain"`
	MountPath string `json:"mount_path"`
}

// Backend is a local backend at the share's mount point.
type Backend struct {
	*local.Backend
	cfg Config
}

// New opens the share at cfg.MountPath. The mount point is not created: a
// missing directory means the share is not mounted.
func New(cfg Config) (*Backend, error) {
	if cfg.MountPath == "" {
		return nil, fmt.Errorf("mount_path is required")
	}
	lb, err := local.New(local.Config{RootPath: cfg.MountPath})
	if err != nil {
		return nil, fmt.Errorf("smb share %s at %s: %w", cfg.Server, cfg.MountPath, err)
	}
	return &Backend{Backend: lb, cfg: cfg}, nil
}

// NewFromJSON creates a Backend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse smb config: %w", err)
	}
	return New(cfg)
}

// Server returns the configured share name.
func (b *Backend) Server() string { return b.cfg.Server }

// Type returns "smb".
func (b *Backend) Type() string { return "smb" }
