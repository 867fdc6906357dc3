package cmd

import (
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init [path to ocfl storage root]",
	Aliases: []string{"create"},
	Short:   "initializes an empty ocfl storage root",
	Example: "ocflkit init ./archive",
	Args:    cobra.ExactArgs(1),
	RunE:    doInit,
}

func doInit(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()
	logger.Info().Msgf("storage root '%s' ready", args[0])
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
