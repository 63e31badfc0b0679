package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/netkit/netkit"
)

var sendCount int

var sendCmd = &cobra.Command{
	Use:   "send <url> [message...]",
	Short: "Send messages and print replies",
	Long: `Send dials the url and sends every message given as argument. Without
arguments lines of standard input are sent. Received messages are printed
until --count replies arrive, the session is closed or the command is
interrupted.

Supported url schemes are tcp, udp, ws and wss.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events := netkit.NewEvents(64)
		s, err := netkit.Dial(ctx, args[0], events, &cfg.Session)
		if err != nil {
			return fmt.Errorf("dial %s: %w", args[0], err)
		}
		defer s.Close()

		g, ctx := errgroup.WithContext(ctx)
		if msgs := args[1:]; len(msgs) > 0 {
			g.Go(func() error {
				for _, msg := range msgs {
					if err := s.SendText(msg); err != nil {
						return err
					}
				}
				return nil
			})
		} else {
			// Reading stdin may block after the session has finished, so
			// it is not part of the group.
			go sendLines(s, bufio.NewScanner(cmd.InOrStdin()))
		}
		g.Go(func() error {
			return printReplies(ctx, cmd, s, events, sendCount)
		})
		return g.Wait()
	},
}

func sendLines(s *netkit.Session, sc *bufio.Scanner) {
	for sc.Scan() {
		if err := s.SendText(sc.Text()); err != nil {
			log.Warn().Err(err).Msg("send error")
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("stdin error")
	}
}

func printReplies(ctx context.Context, cmd *cobra.Command, s *netkit.Session, events *netkit.Events, count int) error {
	var n int
	for {
		select {
		case ev := <-events.C():
			switch ev.Type {
			case netkit.EventMessage:
				fmt.Fprintln(cmd.OutOrStdout(), string(ev.Data))
				if n++; count > 0 && n >= count {
					return nil
				}
			case netkit.EventClose:
				return s.Err()
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func init() {
	sendCmd.Flags().IntVar(&sendCount, "count", 0, "exit after this many replies (0 means no limit)")
	rootCmd.AddCommand(sendCmd)
}
