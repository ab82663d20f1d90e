package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/costdesk/pkg/models"
	"github.com/pario-ai/costdesk/pkg/upload"
)

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a pricing sheet and wait for the processed Price_ result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			u, err := a.uploads(ctx)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", info.Name(), humanize.IBytes(uint64(info.Size())))

			st, err := u.Start(ctx, upload.File{Name: info.Name(), Size: info.Size(), Body: f})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, st.Message)
			if !wait {
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			key, err := waitForResult(ctx, u, a.cfg.Upload.PollInterval, func(msg string) {
				fmt.Fprintln(out, msg)
			})
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("no result after %s; check later with 'costdesk files list'", timeout)
				}
				return err
			}

			fmt.Fprintf(out, "Result: %s\n", key)
			url, err := u.Download(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Download: %s\n", url)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "poll until the processed result appears")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up waiting after this long")
	return cmd
}

// waitForResult polls u every interval until the upload completes and returns
// the result key. Each status message change is passed to progress.
func waitForResult(ctx context.Context, u *upload.Session, interval time.Duration, progress func(string)) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := u.Snapshot().Message
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		res, err := u.Poll(ctx)
		if err != nil {
			progress(err.Error())
			continue
		}

		st := u.Snapshot()
		if st.Message != last && st.Message != "" {
			progress(st.Message)
			last = st.Message
		}
		if res.Completed || st.Status == models.UploadComplete {
			if res.ResultKey != "" {
				return res.ResultKey, nil
			}
			return u.Snapshot().SelectedKey, nil
		}
	}
}
