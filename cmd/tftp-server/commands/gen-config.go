package commands

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skycoin/skytftp/pkg/tftp"
	"github.com/skycoin/skytftp/pkg/util/pathutil"
)

var (
	genOutput     string
	genReplace    bool
	configLocType = pathutil.WorkingDirLoc
)

func init() {
	rootCmd.AddCommand(genConfigCmd)

	genConfigCmd.Flags().StringVarP(&genOutput, "output", "o", "", "path of output config file. Uses default of 'type' flag if unspecified.")
	genConfigCmd.Flags().BoolVarP(&genReplace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
	genConfigCmd.Flags().VarP(&configLocType, "type", "m", fmt.Sprintf("config generation mode. Valid values: %v", pathutil.AllConfigLocationTypes()))
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Generates a config file",
	PreRun: func(_ *cobra.Command, _ []string) {
		if genOutput == "" {
			path, err := pathutil.ServerDefaults().Get(configLocType)
			if err != nil {
				log.Fatal(err)
			}
			genOutput = path
			log.Printf("No 'output' set; using default path: %s", genOutput)
		}
		var err error
		if genOutput, err = filepath.Abs(genOutput); err != nil {
			log.Fatalf("invalid output provided: %s", err)
		}
	},
	Run: func(_ *cobra.Command, _ []string) {
		if err := pathutil.WriteJSONConfig(genConfig(configLocType), genOutput, genReplace); err != nil {
			log.Fatal(err)
		}
	},
}

// genConfig returns the default config with paths for the given location.
func genConfig(loc pathutil.ConfigLocationType) *tftp.Config {
	conf := tftp.DefaultConfig()
	conf.TransferLog = tftp.TransferLogConfig{Type: "bbolt"}

	switch loc {
	case pathutil.HomeLoc:
		conf.Root = "~/.skycoin/skytftp/files"
		conf.TransferLog.Location = "~/.skycoin/skytftp/transfers.db"
	case pathutil.LocalLoc:
		conf.Root = filepath.Join(pathutil.LocalDir, "files")
		conf.TransferLog.Location = filepath.Join(pathutil.LocalDir, "transfers.db")
	default:
		conf.TransferLog.Location = "./transfers.db"
	}
	return conf
}
