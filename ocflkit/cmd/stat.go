package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:     "stat [path to ocfl storage root] [object id]",
	Short:   "shows the version history of an object",
	Example: "ocflkit stat ./archive id:abc123",
	Args:    cobra.ExactArgs(2),
	RunE:    doStat,
}

func doStat(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	r, err := openRepository(args[0], logger)
	if err != nil {
		return err
	}
	defer r.Close()

	inv, err := r.GetInventory(args[1])
	if err != nil {
		return err
	}
	cmd.Printf("object:          %s\n", inv.Id)
	cmd.Printf("digestAlgorithm: %s\n", inv.DigestAlgorithm)
	cmd.Printf("head:            %s\n", inv.Head)
	if inv.HasMutableHead() {
		cmd.Printf("staged:          revision r%d\n", inv.RevisionNum())
	}
	for _, name := range inv.VersionNames() {
		v := inv.Versions[name]
		user := ""
		if v.User != nil {
			user = v.User.Name
		}
		cmd.Printf("%-6s %-12s %-20s %-32s '%s'\n", name,
			humanize.Time(v.Created.Time), v.Created.Format("2006-01-02 15:04:05"), user, v.Message)
		for _, logicalPath := range v.LogicalPaths() {
			cmd.Printf("       %s\n", logicalPath)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statCmd)
}
