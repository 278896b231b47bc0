// Root of command-line argument parsing.
// This file was based off the standard cobra template, see
// https://github.com/spf13/cobra
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sciobjsdb/sodb/pkg/sodbmgr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgFile string
var verbose bool

var sodbManager *sodbmgr.SodbManager

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sodb",
	Short: "Bulk transfer client for the scientific object store",
	Long: `Moves whole projects, datasets and object groups between a local
directory tree and the object store, and runs a local development store.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		mgrArgs := map[string]interface{}{}
		if cfgFile != "" {
			mgrArgs["config-file"] = cfgFile
		}

		var err error
		sodbManager, err = sodbmgr.NewManager(mgrArgs)
		if err != nil {
			fmt.Printf("Failed to initialize sodb manager: %v\n", err)
			os.Exit(1)
		}
		if logger, ok := sodbManager.Logger.(*logrus.Logger); ok && verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		sodbManager.Destroy()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if sodbManager == nil || sodbManager.Logger == nil {
			fmt.Printf("%v\n", err)
		} else {
			sodbManager.Logger.Error(err)
			sodbManager.Destroy()
		}
		os.Exit(1)
	}
}

// commandContext is cancelled on ctrl-c or sigterm from kill.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseKeyValue(s string) map[string]string {

	if s == "" {
		return nil
	}

	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		keyValue := strings.SplitN(pair, "=", 2)
		if len(keyValue) == 2 {
			result[keyValue[0]] = keyValue[1]
		}
	}

	return result
}

// parseLabels turns "k1=v1,k2=v2" into labels sorted by key.
func parseLabels(s string) []sodb.Label {
	kv := parseKeyValue(s)
	labels := make([]sodb.Label, 0, len(kv))
	for k, v := range kv {
		labels = append(labels, sodb.Label{Key: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Key < labels[j].Key })
	return labels
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.sciobjsdb/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}
