package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sdisaacson/desktop/internal/vfs"
)

// entryRow is the structured form of an entry for -o json and -o yaml.
type entryRow struct {
	Name    string     `json:"name" yaml:"name"`
	Path    string     `json:"path" yaml:"path"`
	Key     string     `json:"key" yaml:"key"`
	Folder  bool       `json:"folder" yaml:"folder"`
	Size    *int64     `json:"size,omitempty" yaml:"size,omitempty"`
	Updated *time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`
}

func addOutputFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", "table", "output format: table, json or yaml")
}

// printEntries writes entries in format. pathColumn shows full virtual
// paths instead of names in the table.
func printEntries(w io.Writer, format string, entries []vfs.FileEntry, pathColumn bool) error {
	rows := make([]entryRow, len(entries))
	for i, e := range entries {
		rows[i] = entryRow{
			Name:    e.Name,
			Path:    e.RelativePath,
			Key:     e.FullPath,
			Folder:  e.IsFolder,
			Size:    e.Size,
			Updated: e.Updated,
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tUPDATED")
	for _, r := range rows {
		name, size, updated := r.Name, "-", "-"
		if pathColumn {
			name = r.Path
		} else if r.Folder {
			name += "/"
		}
		if r.Size != nil {
			size = fmt.Sprint(*r.Size)
		}
		if r.Updated != nil {
			updated = r.Updated.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", name, size, updated)
	}
	return tw.Flush()
}
