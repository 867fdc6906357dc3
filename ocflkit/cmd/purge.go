package cmd

import (
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:     "purge [path to ocfl storage root] [object id]",
	Short:   "erases an object root unconditionally",
	Example: "ocflkit purge ./archive id:abc123",
	Args:    cobra.ExactArgs(2),
	RunE:    doPurge,
}

var purgeStagedCmd = &cobra.Command{
	Use:     "purge-staged [path to ocfl storage root] [object id]",
	Short:   "deletes the staged changes of an object, committed versions are untouched",
	Example: "ocflkit purge-staged ./archive id:abc123",
	Args:    cobra.ExactArgs(2),
	RunE:    doPurgeStaged,
}

var commitStagedCmd = &cobra.Command{
	Use:     "commit-staged [path to ocfl storage root] [object id]",
	Short:   "commits the staged changes of an object into a new immutable version",
	Example: "ocflkit commit-staged ./archive id:abc123 -m 'seal version'",
	Args:    cobra.ExactArgs(2),
	RunE:    doCommitStaged,
}

func doPurge(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.PurgeObject(args[1])
}

func doPurgeStaged(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.PurgeStagedChanges(args[1])
}

func doCommitStaged(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	message, _ := cmd.Flags().GetString("message")
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()
	head, err := r.CommitStagedChanges(args[1], versionInfo(message))
	if err != nil {
		return err
	}
	cmd.Printf("%s %s\n", args[1], head)
	return nil
}

func init() {
	commitStagedCmd.Flags().StringP("message", "m", "", "version message")
	rootCmd.AddCommand(purgeCmd, purgeStagedCmd, commitStagedCmd)
}
