package main

import (
	"github.com/spf13/cobra"

	common "github.com/rahnavardnetwork/sos/common/config"
	"github.com/rahnavardnetwork/sos/guard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		for _, key := range []string{"token.secret", "events.identity_salt", "events.signing_key",
			"database.postgres.password", "opensearch.password"} {
			if v.GetString(key) != "" {
				v.Set(key, "********")
			}
		}
		return common.Dump(v, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
