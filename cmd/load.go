// Handles the "sodb load" command

package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/transfer"
	"github.com/spf13/cobra"
)

var loadCmdConfig struct {
	resource  string
	id        string
	path      string
	style     string
	workers   int
	queueSize int
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Download a project, dataset or object group",
	Long: `Enumerates every object below the given resource and downloads it into
the local directory. Objects that fail are reported at the end and do not stop
the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext()
		defer stop()

		res, err := transfer.ParseResource(loadCmdConfig.resource)
		if err != nil {
			return err
		}

		dlConfig, err := sodbManager.DownloadConfig(loadCmdConfig.path, loadCmdConfig.style)
		if err != nil {
			return err
		}
		if loadCmdConfig.workers > 0 {
			dlConfig.Workers = loadCmdConfig.workers
		}
		queueSize := sodbManager.QueueSize()
		if loadCmdConfig.queueSize > 0 {
			queueSize = loadCmdConfig.queueSize
		}

		client, err := sodbManager.Client(ctx)
		if err != nil {
			return err
		}

		enum := transfer.NewEnumerator(client, sodbManager.EnumeratorConfig(), sodbManager.Logger)
		d := transfer.NewDownloader(client, dlConfig, sodbManager.Logger)

		start := time.Now()
		err = d.Load(ctx, enum, res, loadCmdConfig.id, queueSize)
		sodbManager.Logger.Infof("Loaded %s %s in %s: %s", res, loadCmdConfig.id,
			time.Since(start).Round(time.Millisecond), d.Progress)
		if err != nil {
			return errors.Wrap(err, "Load failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVarP(&loadCmdConfig.resource, "resource", "r", "dataset", "resource type: project, dataset or objectgroup")
	loadCmd.Flags().StringVarP(&loadCmdConfig.id, "id", "i", "", "id of the resource")
	loadCmd.Flags().StringVarP(&loadCmdConfig.path, "path", "p", "", "local directory to download into")
	loadCmd.Flags().StringVarP(&loadCmdConfig.style, "style", "s", "", "path style: canonical or flat (default from config)")
	loadCmd.Flags().IntVar(&loadCmdConfig.workers, "workers", 0, "number of parallel downloads (default from config)")
	loadCmd.Flags().IntVar(&loadCmdConfig.queueSize, "queue-size", 0, "capacity of the transfer queue (default from config)")
	loadCmd.MarkFlagRequired("id")
	loadCmd.MarkFlagRequired("path")
}
