// Hazelecho — demo CLI for the hazelgo library.
//
// "hazelecho serve" runs an echo server: every message record a client
// sends is echoed back on the same connection. "hazelecho connect" performs
// the handshake, forwards stdin lines as reliable messages and prints each
// echo together with the current round-trip estimate.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	hazel "github.com/cyyynthia/hazelgo"
	"github.com/cyyynthia/hazelgo/internal/util"
	"github.com/cyyynthia/hazelgo/protocol"
)

var version = "dev"

func main() {
	var debugMode bool

	root := &cobra.Command{
		Use:           "hazelecho",
		Short:         "Echo server and client speaking the Hazel UDP protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debugMode {
				util.EnableDebug()
			}
		},
	}
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	root.AddCommand(serveCmd(), connectCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	var addr string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			srv, err := hazel.Listen(addr, hazel.Config{})
			if err != nil {
				return err
			}
			defer srv.Close()

			srv.OnConnection(func(c *hazel.Conn) {
				c.OnHello(func(payload []byte) {
					util.LogInfo("[%s] hello from %s: %q", c.ID(), c.RemoteAddr(), payload)
				})
				c.OnMessage(func(m protocol.Message) {
					// Echo on a fresh goroutine; SendReliable must not run
					// on the inbound path.
					msg := protocol.Message{Tag: m.Tag, Payload: append([]byte(nil), m.Payload...)}
					go func() {
						if _, err := c.SendReliable(msg); err != nil {
							util.LogWarning("[%s] echo failed: %v", c.ID(), err)
						}
					}()
				})
				c.OnClose(func(ev hazel.CloseEvent) {
					util.LogInfo("[%s] closed (forced=%v reason=%d %q)", c.ID(), ev.Forced, ev.Reason, ev.Message)
				})
			})

			if metricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						util.LogWarning("metrics endpoint: %v", err)
					}
				}()
				util.LogInfo("metrics on http://%s/metrics", metricsAddr)
			}

			pterm.Success.Printfln("echo server ready on %s", srv.Addr())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":22023", "UDP address to listen on")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "expose Prometheus metrics on this HTTP address")
	return cmd
}

// ---------------------------------------------------------------------------
// connect
// ---------------------------------------------------------------------------

func connectCmd() *cobra.Command {
	var hello string

	cmd := &cobra.Command{
		Use:   "connect <host:port>",
		Short: "Connect to an echo server and forward stdin lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := hazel.Dial(args[0], hazel.Config{})
			if err != nil {
				return err
			}

			echoes := make(chan protocol.Message, 16)
			c.OnMessage(func(m protocol.Message) {
				echoes <- protocol.Message{Tag: m.Tag, Payload: append([]byte(nil), m.Payload...)}
			})
			c.OnClose(func(ev hazel.CloseEvent) {
				util.LogInfo("connection closed (forced=%v)", ev.Forced)
			})

			if err := c.Connect([]byte(hello)); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			pterm.Success.Printfln("connected to %s", c.RemoteAddr())

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				if _, err := c.SendReliable(protocol.Message{Tag: 1, Payload: []byte(line)}); err != nil {
					return err
				}
				select {
				case echo := <-echoes:
					pterm.Info.Printfln("echo: %s (rtt %.1f ms)", echo.Payload, c.Ping())
				case <-c.Done():
					return hazel.ErrClosed
				}
			}

			_, err = c.Disconnect(false, 0, "bye")
			return err
		},
	}

	cmd.Flags().StringVar(&hello, "hello", "hazelecho", "handshake payload sent in the HELLO")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hazelecho version",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("hazelecho %s (protocol version %d)\n", version, protocol.Version)
		},
	}
}
