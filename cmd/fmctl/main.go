// fmctl operates on a user's files directly against the object store,
// without going through the server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdisaacson/desktop/internal/config"
	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/storage"
	"github.com/sdisaacson/desktop/internal/storage/factory"
	"github.com/sdisaacson/desktop/internal/vfs"
)

// app carries what every command needs. backend may be preset by tests.
type app struct {
	cfg     *config.Config
	backend storage.Backend
	uid     string
	out     io.Writer
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var backendType, localPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "fmctl",
		Short: "Manage desktop user files from the command line",
		Long: `fmctl reads the server's environment (STORAGE_BACKEND, S3_*, LOCAL_STORAGE_PATH,
JWT_SECRET) and works on the files of one user.

Examples:
  # List a user's root folder
  fmctl --uid alice ls /

  # Upload two files into /docs/
  fmctl --uid alice put report.pdf notes.txt /docs/

  # Archive a folder
  fmctl --uid alice zip /docs/ -o docs.zip`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := logging.Init(logging.Config{Level: "warn", Format: "console", OutputPath: "stderr"}); err != nil {
				return err
			}
			if verbose {
				logging.SetLevel("debug")
			}
			if a.cfg == nil {
				cfg, err := config.LoadTool()
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			if backendType != "" {
				a.cfg.StorageBackend = backendType
			}
			if localPath != "" {
				a.cfg.LocalStoragePath = localPath
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.backend != nil {
				a.backend.Close()
			}
		},
	}

	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.uid, "uid", "", "user whose files to operate on")
	root.PersistentFlags().StringVar(&backendType, "backend", "", "override STORAGE_BACKEND (local, s3, smb, memory)")
	root.PersistentFlags().StringVar(&localPath, "local-path", "", "override LOCAL_STORAGE_PATH")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log storage operations to stderr")

	root.AddCommand(
		newLsCmd(a),
		newFindCmd(a),
		newMkdirCmd(a),
		newPutCmd(a),
		newGetCmd(a),
		newMvCmd(a),
		newRenameCmd(a),
		newRmCmd(a),
		newCpCmd(a),
		newZipCmd(a),
		newUnzipCmd(a),
		newURLCmd(a),
		newTokenCmd(a),
	)
	return root
}

// files opens the backend on first use and binds it to --uid.
func (a *app) files(cmd *cobra.Command) (*vfs.FileSystem, error) {
	if a.uid == "" {
		return nil, fmt.Errorf("--uid is required")
	}
	root := vfs.RootFor(a.uid)
	if !root.Available() {
		return nil, fmt.Errorf("invalid uid %q", a.uid)
	}
	if a.backend == nil {
		logging.S().Debugf("opening %s backend for %s", a.cfg.StorageBackend, root)
		b, err := factory.Open(cmd.Context(), a.cfg)
		if err != nil {
			return nil, err
		}
		a.backend = b
	}
	return vfs.New(a.backend, root, vfs.WithConcurrency(a.cfg.Concurrency)), nil
}
