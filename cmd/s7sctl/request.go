package main

import (
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func requestCmd(opts *rootOptions) *cobra.Command {
	var (
		to      int32
		timeout time.Duration
		asHex   bool
	)

	cmd := &cobra.Command{
		Use:   "request <payload>",
		Short: "Send one request and print the response",
		Long: `Connect, send payload as a single request envelope and print the payload
of the response that carries the same id. With --hex the payload argument
is hex-decoded and the response is printed as hex.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(args[0])
			if asHex {
				b, err := hex.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("decode payload: %w", err)
				}
				payload = b
			}

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

			rs, ok, err := conn.Request(ctx, payload, to, timeout)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no response within %s", timeout)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id=%d to=%d from=%d size=%d\n", rs.ID, rs.To, rs.From, len(rs.Payload))
			if asHex {
				fmt.Fprintln(out, hex.EncodeToString(rs.Payload))
			} else {
				fmt.Fprintln(out, string(rs.Payload))
			}
			return nil
		},
	}

	cmd.Flags().Int32Var(&to, "to", 0, "destination connection id (0 addresses the server)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "response timeout")
	cmd.Flags().BoolVar(&asHex, "hex", false, "payload and response are hex encoded")
	return cmd
}
