package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/cardigan/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Cardigan build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Full())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
