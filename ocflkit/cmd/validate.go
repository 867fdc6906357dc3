package cmd

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:     "validate [path to ocfl storage root] [object id]",
	Short:   "validates an object's inventory and content fixity",
	Example: "ocflkit validate ./archive id:abc123",
	Args:    cobra.ExactArgs(2),
	RunE:    doValidate,
}

func doValidate(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	noContent, _ := cmd.Flags().GetBool("no-content")
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := r.ValidateObject(args[1], !noContent); err != nil {
		return err
	}
	cmd.Printf("object %s is valid\n", args[1])
	return nil
}

func init() {
	validateCmd.Flags().Bool("no-content", false, "skip the content fixity sweep")
	rootCmd.AddCommand(validateCmd)
}
