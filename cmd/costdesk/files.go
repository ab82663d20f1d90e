package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/costdesk/pkg/models"
)

func newFilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse and download files in the pricing bucket",
	}
	cmd.AddCommand(
		newFilesListCmd(opts),
		newFilesSelectCmd(opts),
		newFilesDownloadCmd(opts),
	)
	return cmd
}

func newFilesListCmd(opts *rootOptions) *cobra.Command {
	var resultsOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all objects in the bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.uploads(cmd.Context())
			if err != nil {
				return err
			}
			files, err := u.Files(cmd.Context())
			if err != nil {
				return err
			}
			if resultsOnly {
				kept := files[:0]
				for _, f := range files {
					if strings.HasPrefix(f.Key, "Price_") {
						kept = append(kept, f)
					}
				}
				files = kept
			}

			selected, _, err := a.store.Get(cmd.Context(), keySelectedFile)
			if err != nil {
				return err
			}
			printFiles(cmd.OutOrStdout(), files, selected, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&resultsOnly, "results", false, "only show processed Price_ results")
	return cmd
}

func newFilesSelectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select KEY",
		Short: "Choose the file that 'files download' fetches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Set(cmd.Context(), keySelectedFile, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s\n", args[0])
			return nil
		},
	}
}

func newFilesDownloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download [KEY]",
		Short: "Print a time-limited download link for KEY or the selected file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.uploads(cmd.Context())
			if err != nil {
				return err
			}

			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				selected, _, err := a.store.Get(cmd.Context(), keySelectedFile)
				if err != nil {
					return err
				}
				u.Select(selected)
			}

			url, err := u.Download(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func printFiles(w io.Writer, files []models.ObjectInfo, selected string, now time.Time) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tKEY\tSIZE\tMODIFIED")
	for _, f := range files {
		mark := ""
		if f.Key == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, f.Key,
			humanize.IBytes(uint64(f.Size)), humanize.RelTime(f.LastModified, now, "ago", "from now"))
	}
	tw.Flush()
}
