package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwrk-planet/live-service/internal/viewer"
)

type watchOptions struct {
	url     string
	token   string
	userID  int64
	metrics bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <room_id>",
		Short: "Join a room and print its chat, danmu and gifts.",
		Long: `Connects to a running broker over WebSocket and joins the room.
Lines typed on stdin are sent as chat; "/danmu <text>" sends a danmu.
Without --token the viewer is anonymous and can only chat and watch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, opts, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/ws", "broker websocket url")
	cmd.Flags().StringVar(&opts.token, "token", "", "access token")
	cmd.Flags().Int64Var(&opts.userID, "user", 0, "user id (trusted-header mode)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "also print platform metrics snapshots")
	return cmd
}

func watch(ctx context.Context, opts *watchOptions, roomID string, in io.Reader, out io.Writer) error {
	c, err := viewer.Dial(ctx, viewer.Config{
		URL:    opts.url,
		RoomID: roomID,
		Token:  opts.token,
		UserID: opts.userID,
		Out:    out,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(); err != nil {
		return err
	}
	if opts.metrics {
		if err := c.SubscribeMetrics(); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "watching %s, Ctrl+C to quit\n", roomID)

	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var err error
			if text, ok := strings.CutPrefix(line, "/danmu "); ok {
				err = c.Danmu(text)
			} else {
				err = c.Say(line)
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "send:", err)
				return
			}
		}
	}()

	return c.Run(ctx)
}
