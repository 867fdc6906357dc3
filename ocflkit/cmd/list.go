package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list [path to ocfl storage root]",
	Short:   "lists the ids of all objects in the storage root",
	Example: "ocflkit list ./archive",
	Args:    cobra.ExactArgs(1),
	RunE:    doList,
}

func doList(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.ForEachObject(func(id string) error {
		cmd.Println(id)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(listCmd)
}
