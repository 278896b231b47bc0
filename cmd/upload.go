// Handles the "sodb upload" command

package cmd

import (
	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/transfer"
	"github.com/spf13/cobra"
)

var uploadCmdConfig struct {
	id   string
	file string
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a local file into an existing object",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext()
		defer stop()

		client, err := sodbManager.Client(ctx)
		if err != nil {
			return err
		}

		up := transfer.NewUploader(client, sodbManager.UploadConfig(), sodbManager.Logger)
		if err := up.UploadFile(ctx, uploadCmdConfig.file, uploadCmdConfig.id); err != nil {
			return errors.Wrap(err, "Upload failed")
		}
		sodbManager.Logger.Infof("Uploaded %s", up.Progress)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVarP(&uploadCmdConfig.id, "id", "i", "", "id of the object")
	uploadCmd.Flags().StringVarP(&uploadCmdConfig.file, "file", "f", "", "local file to upload")
	uploadCmd.MarkFlagRequired("id")
	uploadCmd.MarkFlagRequired("file")
}
