package cmd

import (
	"io"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:     "extract [path to ocfl storage root] [object id] [target folder]",
	Short:   "extracts a version of an object into a local folder",
	Example: "ocflkit extract ./archive id:abc123 /tmp/out --object-version v2",
	Args:    cobra.ExactArgs(3),
	RunE:    doExtract,
}

func doExtract(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	storageRoot, objectID, dstDir := args[0], args[1], args[2]
	objectVersion, _ := cmd.Flags().GetString("object-version")

	r, err := openRepository(storageRoot, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	files, err := r.ListFiles(objectID, objectVersion)
	if err != nil {
		return err
	}
	inv, err := r.GetInventory(objectID)
	if err != nil {
		return err
	}
	if objectVersion == "" {
		objectVersion = inv.Head
	}
	for _, file := range files {
		fp, err := r.ReadObjectVersion(objectID, objectVersion, file.LogicalPath)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, filepath.FromSlash(file.LogicalPath))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			fp.Close()
			return errors.Wrapf(err, "cannot create '%s'", filepath.Dir(target))
		}
		out, err := os.Create(target)
		if err != nil {
			fp.Close()
			return errors.Wrapf(err, "cannot create '%s'", target)
		}
		_, err = io.Copy(out, fp)
		fp.Close()
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "cannot extract '%s'", file.LogicalPath)
		}
		logger.Debug().Msgf("extracted '%s'", file.LogicalPath)
	}
	cmd.Printf("extracted %d files of %s %s to %s\n", len(files), objectID, objectVersion, dstDir)
	return nil
}

func init() {
	extractCmd.Flags().String("object-version", "", "version to extract (default: head)")
	rootCmd.AddCommand(extractCmd)
}
