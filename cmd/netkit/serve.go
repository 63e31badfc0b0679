package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netkit/netkit"
)

var (
	serveKind      string
	serveAddr      string
	serveBroadcast bool
)

// server is implemented by netkit.Server and netkit.UDPServer.
type server interface {
	Listen(addr string) error
	Addr() net.Addr
	Registry() *netkit.Registry
	Shutdown(ctx context.Context) error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run echo server",
	Long: `Serve accepts sessions of the given kind and echoes every received
message back to its sender. With --broadcast messages are sent to every
connected peer instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := netkit.ParseKind(serveKind)
		if !ok {
			return fmt.Errorf("unknown kind %q", serveKind)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := newServer(kind, &cfg.Session, serveBroadcast)
		if err != nil {
			return err
		}
		if err := srv.Listen(serveAddr); err != nil {
			return err
		}
		log.Info().
			Str("kind", kind.String()).
			Str("addr", srv.Addr().String()).
			Bool("broadcast", serveBroadcast).
			Msg("listening")

		<-ctx.Done()
		log.Info().Msg("shutting down")

		timeout := cfg.Session.ShutdownTimeout
		if timeout == 0 {
			timeout = netkit.DefaultShutdownTimeout
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(sctx)
	},
}

func newServer(kind netkit.Kind, config *netkit.Config, broadcast bool) (server, error) {
	var srv server
	h := netkit.HandlerFuncs{
		Open: func(c netkit.Conn) {
			log.Info().Uint64("session", c.ID()).Stringer("remote", c.RemoteAddr()).Msg("open")
		},
		Message: func(c netkit.Conn, p []byte) {
			if !broadcast {
				c.Send(p)
				return
			}
			if _, err := srv.Registry().Broadcast(p); err != nil {
				log.Warn().Err(err).Msg("broadcast error")
			}
		},
		Close: func(c netkit.Conn) {
			log.Info().Uint64("session", c.ID()).Msg("close")
		},
	}

	if kind == netkit.KindUDP {
		s, err := netkit.NewUDPServer(h, config)
		if err != nil {
			return nil, err
		}
		srv = s
		return srv, nil
	}
	s, err := netkit.NewServer(kind, h, config)
	if err != nil {
		return nil, err
	}
	srv = s
	return srv, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveKind, "kind", "tcp", "session kind: tcp, ws or udp")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9999", "address to listen on")
	serveCmd.Flags().BoolVar(&serveBroadcast, "broadcast", false, "send received messages to all peers")
	rootCmd.AddCommand(serveCmd)
}
