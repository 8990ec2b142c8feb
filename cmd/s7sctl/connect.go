package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func connectCmd(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect, print the negotiated session and hold the connection open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.newRuntime(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, err := rt.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			sess, _ := conn.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "connected server_cvid=%d sid=%d server_uuid=%q\n",
				sess.ServerCVID, sess.SID, sess.ServerUUID)
			if once {
				return nil
			}

			rt.serveStatus(ctx, opts.metricsAddr, conn)
			select {
			case <-ctx.Done():
				rt.logger.Info().Msg("shutting down")
				return nil
			case <-conn.Done():
				if err := conn.Err(); err != nil {
					return err
				}
				return fmt.Errorf("connection closed by peer")
			}
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "exit after the handshake")
	return cmd
}
