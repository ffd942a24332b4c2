package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytrpc/internal/host"
	"github.com/desertthunder/ytrpc/internal/models"
)

// Host serves the dry-run native host protocol on stdin/stdout until stdin closes.
func (r *Runner) Host(ctx context.Context, cmd *cli.Command) error {
	sink := host.New(host.Options{
		Version:  cmd.String("host-version"),
		Identity: models.SinkIdentity{Username: cmd.String("username")},
		Logger:   r.logger,
	})

	out := r.output
	if out == nil {
		out = os.Stdout
	}

	err := sink.Serve(ctx, r.input, out)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
