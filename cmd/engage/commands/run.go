package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engagemesh/engage/src/crypto/keys"
	"github.com/engagemesh/engage/src/node"
	"github.com/engagemesh/engage/src/peers"
	"github.com/engagemesh/engage/src/service"
)

//NewRunCmd returns the command that starts an engage node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runEngage,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runEngage(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	keyfile := keys.NewSimpleKeyfile(_config.Keyfile())
	key, err := keyfile.ReadKey()
	if err != nil {
		logger.Errorf("Cannot read private key (%v); run 'engage keygen' first", err)
		return err
	}
	_config.Key = key

	peerStore := peers.NewJSONPeers(_config.DataDir)
	peerSet, err := peerStore.PeerSet()
	if err != nil {
		logger.Debugf("No peers file (%v); accepting vertices from any peer", err)
		peerSet = peers.NewPeerSet(nil)
	}

	engageNode, err := node.NewNode(_config, key, peerSet)
	if err != nil {
		logger.Error("Cannot initialize node:", err)
		return err
	}

	if !_config.NoService {
		serviceServer := service.NewService(_config.ServiceAddr, engageNode, logger)
		go serviceServer.Serve()
	}

	engageNode.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("log-files", _config.LogFiles, "Write per-level log files in datadir")
	cmd.Flags().String("moniker", _config.Moniker, "Optional node identifier")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in LRU caches")

	// Ledger
	cmd.Flags().Duration("heartbeat", _config.HeartbeatInterval, "Time between heartbeat vertices")
	cmd.Flags().Duration("prune-interval", _config.PruneInterval, "Time between pruning passes")
	cmd.Flags().Float64("alpha", _config.Alpha, "Tip-selection walk-weighting exponent")
	cmd.Flags().Int("walk-limit", _config.WalkLimit, "Max steps of one tip-selection walk")
	cmd.Flags().Int("recency-window", _config.RecencyWindow, "Walk-start recency window")
	cmd.Flags().Duration("proof-max-age", _config.ProofMaxAge, "Engagement proof freshness window")
	cmd.Flags().Duration("retention", _config.RetentionWindow, "Unanchored vertex retention window")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitly set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":           _config.DataDir,
		"ServiceAddr":       _config.ServiceAddr,
		"Store":             _config.Store,
		"DatabaseDir":       _config.DatabaseDir,
		"HeartbeatInterval": _config.HeartbeatInterval,
		"PruneInterval":     _config.PruneInterval,
		"Alpha":             _config.Alpha,
		"WalkLimit":         _config.WalkLimit,
		"RecencyWindow":     _config.RecencyWindow,
		"ProofMaxAge":       _config.ProofMaxAge,
		"RetentionWindow":   _config.RetentionWindow,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all
	// other persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/engage.toml (.json, .yaml also work)
	viper.SetConfigName("engage")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
