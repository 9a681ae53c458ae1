package main

import (
	"fmt"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	toolsSchema bool

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the deep loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := localTools()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, def := range reg.Definitions() {
				fmt.Fprintf(out, "%s: %s\n", color.YellowString(def.Name), def.Description)
				if !toolsSchema {
					continue
				}
				b, err := json.MarshalIndent(def.Schema(), "  ", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s\n", b)
			}
			return nil
		},
	}
)

func init() {
	toolsCmd.Flags().BoolVar(&toolsSchema, "schema", false, "print the JSON schema of each tool's arguments")
}
