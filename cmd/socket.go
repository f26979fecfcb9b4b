package cmd

import (
	"context"
	"net"

	"github.com/foomo/keel/service"
	"github.com/foomo/restoreserver/pkg/handler"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewSocketCommand() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:               "socket <url>",
		Short:             "Start socket server",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: urlArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svr := newServer(v)
			l := svr.Logger()

			r, err := newRepo(cmd.Context(), svr, v, args[0])
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", addressFlag(v))
			if err != nil {
				return errors.Wrap(err, "failed to listen")
			}
			handle := handler.NewSocket(l.Named("inst.handler"), r)

			svr.AddServices(
				service.NewGoRoutine(l.Named("go.socket"), "socket", func(ctx context.Context, l *zap.Logger) error {
					l.Info("started listening", zap.String("address", ln.Addr().String()))
					return handle.Serve(ctx, ln)
				}),
			)

			svr.Run()
			return nil
		},
	}

	flags := cmd.Flags()
	addAddressFlag(flags, v, "127.0.0.1:8081")
	addServerFlags(flags, v)

	return cmd
}
