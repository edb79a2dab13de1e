package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List countries the model supports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}
		countries, err := client.Countries(cmd.Context())
		if err != nil {
			return reportError(err)
		}
		for _, c := range countries {
			fmt.Println(c)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(countriesCmd)
}
