// Handles the "sodb create" command

package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sciobjsdb/sodb/pkg/transfer"
	"github.com/sciobjsdb/sodb/pkg/walker"
	"github.com/spf13/cobra"
)

var createCmdConfig struct {
	resource    string
	path        string
	datasetID   string
	description string
	labels      string
	workers     int
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create object groups and upload their files",
	Long: `With -r objectgroup, -p names a YAML request file describing one object
group; its object_files are uploaded once the group exists. With
-r objectgroup-from-dir, -p names a directory and every directory below it
that holds files becomes one object group in the dataset given by -d.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext()
		defer stop()

		client, err := sodbManager.Client(ctx)
		if err != nil {
			return err
		}
		up := transfer.NewUploader(client, sodbManager.UploadConfig(), sodbManager.Logger)

		switch createCmdConfig.resource {
		case "objectgroup", "object_group":
			err = createFromRequest(ctx, client, up)
		case "objectgroup-from-dir":
			err = createFromDir(ctx, client, up)
		default:
			return errors.Errorf("unknown resource %q (want objectgroup or objectgroup-from-dir)", createCmdConfig.resource)
		}
		if err != nil {
			return errors.Wrap(err, "Create command failed")
		}
		sodbManager.Logger.Infof("Uploaded %s", up.Progress)
		return nil
	},
}

func createFromRequest(ctx context.Context, client *remote.Client, up *transfer.Uploader) error {
	var file sodb.ObjectGroupFile
	if err := sodb.ReadRequestFile(createCmdConfig.path, &file); err != nil {
		return err
	}
	if createCmdConfig.datasetID != "" {
		file.DatasetID = createCmdConfig.datasetID
	}
	req, paths, err := file.CreateRequest()
	if err != nil {
		return err
	}
	return createGroup(ctx, client, up, req, paths)
}

func createFromDir(ctx context.Context, client *remote.Client, up *transfer.Uploader) error {
	if createCmdConfig.datasetID == "" {
		return errors.New("objectgroup-from-dir needs a dataset id (-d)")
	}
	batches, err := walker.Walk(createCmdConfig.path)
	if err != nil {
		return err
	}
	sodbManager.Logger.Infof("Found %d files in %d directories", batches.Count(), len(batches))

	labels := parseLabels(createCmdConfig.labels)
	for _, dir := range batches.Dirs() {
		req := &sodb.CreateObjectGroupRequest{
			DatasetID:   createCmdConfig.datasetID,
			Name:        walker.GroupName(createCmdConfig.path, dir),
			Description: createCmdConfig.description,
			Labels:      labels,
		}
		paths := batches[dir]
		for _, path := range paths {
			obj, err := sodb.ObjectRequestFromFile(path)
			if err != nil {
				return err
			}
			req.Objects = append(req.Objects, obj)
		}
		if err := createGroup(ctx, client, up, req, paths); err != nil {
			return err
		}
	}
	return nil
}

func createGroup(ctx context.Context, client *remote.Client, up *transfer.Uploader, req *sodb.CreateObjectGroupRequest, paths []string) error {
	resp, err := client.CreateObjectGroup(ctx, req)
	if err != nil {
		return err
	}
	sodbManager.Logger.WithField("group", req.Name).Infof("Created object group %s with %d objects", resp.ObjectGroupID, len(resp.ObjectLinks))

	workers := createCmdConfig.workers
	if workers <= 0 {
		workers = sodbManager.Cfg.GetInt("transfer.workers")
	}
	return up.UploadGroup(ctx, resp, paths, workers)
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createCmdConfig.resource, "resource", "r", "objectgroup", "what to create: objectgroup or objectgroup-from-dir")
	createCmd.Flags().StringVarP(&createCmdConfig.path, "path", "p", "", "request file or directory")
	createCmd.Flags().StringVarP(&createCmdConfig.datasetID, "dataset", "d", "", "dataset id, overrides the request file")
	createCmd.Flags().StringVar(&createCmdConfig.description, "description", "", "description of directory object groups")
	createCmd.Flags().StringVarP(&createCmdConfig.labels, "labels", "l", "", "labels of directory object groups: key1=value1,key2=value2")
	createCmd.Flags().IntVar(&createCmdConfig.workers, "workers", 0, "number of parallel uploads (default from config)")
	createCmd.MarkFlagRequired("path")
}
