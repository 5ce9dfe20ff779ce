package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdisaacson/desktop/internal/auth"
)

func newURLCmd(a *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "url <file>",
		Short: "Print a time-limited download URL (S3 only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.files(cmd)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = a.cfg.SignedURLTTL
			}
			url, err := fs.DownloadURL(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			cmd.Println(url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "URL lifetime (default SIGNED_URL_TTL)")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for --uid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.uid == "" {
				return fmt.Errorf("--uid is required")
			}
			if a.cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to sign tokens")
			}
			tok, exp, err := auth.New(a.cfg.JWTSecret).IssueToken(a.uid, email, ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			cmd.PrintErrf("expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
