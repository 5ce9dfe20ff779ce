package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sdisaacson/desktop/internal/vfs"
)

func newLsCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "ls [folder]",
		Short: "List a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			folder := vfs.RootPath
			if len(args) == 1 {
				folder = args[0]
			}
			entries, err := fs.ListEntries(cmd.Context(), folder)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), output, entries, false)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "find <pattern> [folder]",
		Short: "Find files and folders by glob pattern",
		Long: `Find matches paths relative to the folder (default /). "**" spans
any number of folders:

  fmctl --uid alice find '**/*.pdf'
  fmctl --uid alice find 'reports/2024-*' /archive/`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			folder := vfs.RootPath
			if len(args) == 2 {
				folder = args[1]
			}
			entries, err := fs.Find(cmd.Context(), folder, args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), output, entries, true)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <folder>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			folder := vfs.EnsureFolderPath(args[0])
			entry, err := fs.CreateFolder(cmd.Context(), vfs.ParentFolder(folder), vfs.BaseName(folder))
			if err != nil {
				return err
			}
			cmd.Println(entry.RelativePath)
			return nil
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file>... <folder>",
		Short: "Upload local files into a folder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			locals, folder := args[:len(args)-1], args[len(args)-1]

			files := make([]vfs.UploadFile, 0, len(locals))
			for _, p := range locals {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				files = append(files, vfs.UploadFile{Name: filepath.Base(p), Data: data})
			}
			if err := fs.Upload(cmd.Context(), folder, files); err != nil {
				return err
			}
			for _, f := range files {
				cmd.Println(vfs.JoinRelativePath(folder, f.Name, false))
			}
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <file> [local-file]",
		Short: "Download a file (to stdout without a local path)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			data, err := fs.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 || args[1] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(args[1], data, 0o644)
		},
	}
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <folder>",
		Short: "Move a file or folder into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			entry, err := fs.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dst := vfs.JoinRelativePath(args[1], entry.Name, entry.IsFolder)
			if entry.IsFolder {
				err = fs.MoveFolder(cmd.Context(), entry.RelativePath, dst)
			} else {
				err = fs.MoveFile(cmd.Context(), entry.RelativePath, dst)
			}
			if err != nil {
				return err
			}
			cmd.Println(dst)
			return nil
		},
	}
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			entry, err := fs.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry.IsFolder {
				return fs.RenameFolder(cmd.Context(), entry.RelativePath, args[1])
			}
			return fs.RenameFile(cmd.Context(), entry.RelativePath, args[1])
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files or folders (folders recursively)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			for _, p := range args {
				entry, err := fs.Stat(cmd.Context(), p)
				if err != nil {
					return err
				}
				if entry.IsFolder {
					err = fs.DeleteFolder(cmd.Context(), entry.RelativePath)
				} else {
					err = fs.DeleteFile(cmd.Context(), entry.RelativePath)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <folder> <new-folder>",
		Short: "Copy a folder tree to a new path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			return fs.CopyFolder(cmd.Context(), args[0], args[1])
		},
	}
}
