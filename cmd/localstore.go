// Handles the "sodb localstore" command
package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/localstore"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sciobjsdb/sodb/pkg/transfer"
	"github.com/spf13/cobra"
)

var localStoreCmd = &cobra.Command{
	Use:   "localstore",
	Short: "Run and fill a local development object store",
}

var localStoreServeConfig struct {
	address     string
	httpAddress string
	dir         string
	backend     string
}

var localStoreServe = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resource services until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		config := sodbManager.LocalStoreConfig()
		if localStoreServeConfig.address != "" {
			config.Address = localStoreServeConfig.address
		}
		if localStoreServeConfig.httpAddress != "" {
			config.HTTPAddress = localStoreServeConfig.httpAddress
		}
		if localStoreServeConfig.dir != "" {
			config.Dir = localStoreServeConfig.dir
		}
		if localStoreServeConfig.backend != "" {
			config.Backend = localStoreServeConfig.backend
		}

		s := localstore.NewServer(config, sodbManager.Logger)
		if err := s.Start(); err != nil {
			return errors.Wrap(err, "Failed to start local store")
		}

		// Shutdown cleanly on ctrl-c or sigterm from kill
		ctx, stop := commandContext()
		defer stop()
		done := make(chan error, 1)
		go func() {
			done <- s.Wait()
		}()

		var err error
		select {
		case <-ctx.Done():
			sodbManager.Logger.Info("Shutting down local store")
		case err = <-done:
		}
		s.Shutdown()
		return err
	},
}

var localStoreSeedFile string

var localStoreSeed = &cobra.Command{
	Use:   "seed",
	Short: "Create a project from a seed file in a running local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext()
		defer stop()

		var seed localstore.SeedFile
		if err := sodb.ReadRequestFile(localStoreSeedFile, &seed); err != nil {
			return err
		}

		client, err := sodbManager.Client(ctx)
		if err != nil {
			return err
		}
		up := transfer.NewUploader(client, sodbManager.UploadConfig(), sodbManager.Logger)
		result, err := localstore.Seed(ctx, client, up, &seed)
		if err != nil {
			return errors.Wrap(err, "Seeding failed")
		}

		fmt.Printf("project %s: %s\n", seed.Project, result.ProjectID)
		for _, ds := range seed.Datasets {
			fmt.Printf("dataset %s: %s\n", ds.Name, result.DatasetIDs[ds.Name])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(localStoreCmd)

	localStoreCmd.AddCommand(localStoreServe)
	localStoreServe.Flags().StringVar(&localStoreServeConfig.address, "address", "", "grpc listen address (default from config)")
	localStoreServe.Flags().StringVar(&localStoreServeConfig.httpAddress, "http-address", "", "link server listen address (default from config)")
	localStoreServe.Flags().StringVar(&localStoreServeConfig.dir, "dir", "", "object directory of the fs backend (default from config)")
	localStoreServe.Flags().StringVar(&localStoreServeConfig.backend, "backend", "", "blob backend: fs or s3 (default from config)")

	localStoreCmd.AddCommand(localStoreSeed)
	localStoreSeed.Flags().StringVarP(&localStoreSeedFile, "file", "f", "", "seed file")
	localStoreSeed.MarkFlagRequired("file")
}
