package main

import (
	"github.com/hyperjump/quire/internal/session"
	"github.com/hyperjump/quire/internal/sharelink"
	"github.com/hyperjump/quire/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) tuiCmd() *cobra.Command {
	var open string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Browse and edit documents in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			intent, err := a.startIntent(open)
			if err != nil {
				return err
			}
			// the screen belongs to the UI; logs would tear it
			logger := zap.NewNop()
			bridge := tui.NewBridge()
			sess := session.New(a.client(),
				session.WithConfirmer(bridge),
				session.WithNotify(bridge.Notify),
				session.WithLogger(logger),
			)
			return tui.Run(cmd.Context(), sess, bridge, tui.WithIntent(intent), tui.WithLogger(logger))
		},
	}
	cmd.Flags().StringVar(&open, "open", "", "start at the target of a share link")
	return cmd
}

// startIntent picks where the UI lands: the share link when given, else the
// configured library.
func (a *app) startIntent(open string) (sharelink.Intent, error) {
	if open != "" {
		return sharelink.ParseIntent(open)
	}
	return sharelink.Intent{Library: a.cfg.Client.DefaultLibrary}, nil
}
