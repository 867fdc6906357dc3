package cmd

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/repo"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:     "put [path to ocfl storage root] [object id] [source folder]",
	Short:   "creates a new object version from a local folder",
	Example: "ocflkit put ./archive id:abc123 /tmp/payload -m 'initial ingest'",
	Args:    cobra.ExactArgs(3),
	RunE:    doPut,
}

func doPut(cmd *cobra.Command, args []string) error {
	l := newLogger()
	logger := &l
	storageRoot, objectID, srcDir := args[0], args[1], args[2]
	message, _ := cmd.Flags().GetString("message")
	stage, _ := cmd.Flags().GetBool("stage")

	var fixityAlgs []checksum.DigestAlgorithm
	if conf.Put != nil {
		for _, alg := range conf.Put.Fixity {
			fixityAlgs = append(fixityAlgs, checksum.DigestAlgorithm(alg))
		}
	}

	r, err := openRepository(storageRoot, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	ingest := func(u *repo.ObjectUpdater) error {
		return filepath.WalkDir(srcDir, func(entry string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(srcDir, entry)
			if err != nil {
				return errors.WithStack(err)
			}
			return u.AddPath(entry, filepath.ToSlash(rel), true, fixityAlgs...)
		})
	}

	var head string
	if stage {
		head, err = r.StageChanges(objectID, versionInfo(message), ingest)
	} else {
		head, err = r.UpdateObject(objectID, versionInfo(message), ingest)
	}
	if err != nil {
		return err
	}
	logger.Info().Msgf("object '%s' now at %s", objectID, head)
	cmd.Printf("%s %s\n", objectID, head)
	return nil
}

func init() {
	putCmd.Flags().StringP("message", "m", "", "version message")
	putCmd.Flags().Bool("stage", false, "stage into the mutable HEAD instead of committing a version")
	rootCmd.AddCommand(putCmd)
}
