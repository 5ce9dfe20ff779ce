package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdisaacson/desktop/internal/archive"
	"github.com/sdisaacson/desktop/internal/vfs"
)

func newZipCmd(a *app) *cobra.Command {
	var output, formatName string

	cmd := &cobra.Command{
		Use:   "zip <path>... -o <local-file>",
		Short: "Pack files and folders into a local archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			format := archive.Format(nil)
			if formatName != "" {
				f, err := archive.ByName(formatName)
				if err != nil {
					return err
				}
				format = f
			} else if f, ok := archive.ForName(output); ok {
				format = f
			}

			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			selection := make([]vfs.FileEntry, 0, len(args))
			for _, p := range args {
				entry, err := fs.Stat(cmd.Context(), p)
				if err != nil {
					return err
				}
				selection = append(selection, entry)
			}

			data, err := fs.BuildArchive(cmd.Context(), selection, format)
			if err != nil {
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "local archive path")
	cmd.Flags().StringVar(&formatName, "format", "", "zip, tar.gz or tar.zst (default from the output name, else zip)")
	return cmd
}

func newUnzipCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unzip <archive> [folder]",
		Short: "Extract an archive stored in the user's files",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			entry, err := fs.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			target := vfs.ParentFolder(entry.RelativePath)
			if len(args) == 2 {
				target = args[1]
			}
			return fs.ExtractArchive(cmd.Context(), entry, target)
		},
	}
}
