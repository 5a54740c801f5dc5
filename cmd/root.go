package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "delver", Short: "Iterative web research pipeline"}
	root.AddCommand(serveCMD(), workerCMD(), researchCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
