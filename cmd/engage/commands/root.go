package commands

import (
	"github.com/spf13/cobra"

	"github.com/engagemesh/engage/src/config"
)

var _config = config.NewDefaultConfig()

//RootCmd is the root command for engage
var RootCmd = &cobra.Command{
	Use:              "engage",
	Short:            "engagement-proof DAG ledger",
	TraverseChildren: true,
}
