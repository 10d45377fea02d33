package main

import (
	"github.com/hyperjump/quire/internal/cli"
	"github.com/hyperjump/quire/internal/models"
	"github.com/spf13/cobra"
)

func (a *app) librariesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "libraries",
		Aliases: []string{"libs"},
		Short:   "List or create libraries",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			libs, err := a.client().ListLibraries(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteLibraries(a.stdout, libs, a.cfg.Client.DefaultLibrary, a.format)
		},
	}

	var base string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a library",
		Long: `Create a library. Its folder is <base>/<name>; a relative or empty base
is resolved under the server's libraries root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.client().CreateLibrary(cmd.Context(), args[0], base)
			if err != nil {
				return err
			}
			return cli.WriteLibraries(a.stdout, []models.Library{lib}, "", a.format)
		},
	}
	create.Flags().StringVar(&base, "base", "", "parent folder of the library")

	cmd.AddCommand(list, create)
	cmd.RunE = list.RunE
	return cmd
}
