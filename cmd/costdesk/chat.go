package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/chat"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [query...]",
		Short: "Ask for a cost estimate, or start an interactive session with no arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if _, err := a.quota.Observe(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return ask(ctx, a.assistant, out, strings.Join(args, " "))
			}
			return chatLoop(ctx, a.assistant, cmd.InOrStdin(), out)
		},
	}
	return cmd
}

func ask(ctx context.Context, assistant *chat.Assistant, out io.Writer, query string) error {
	reply, err := assistant.Ask(ctx, query)
	if err != nil {
		return err
	}
	fmt.Fprint(out, chat.RenderReply(reply))
	return nil
}

// chatLoop reads one query per line until EOF. Blocking messages such as an
// exhausted quota are printed and the loop continues.
func chatLoop(ctx context.Context, assistant *chat.Assistant, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Describe the servers you want priced. Ctrl-D to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		err := ask(ctx, assistant, out, scanner.Text())
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return nil
		case apperr.KindOf(err) == apperr.KindInternal:
			return err
		default:
			fmt.Fprintln(out, err)
		}
		fmt.Fprintln(out)
	}
}
