package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "ingest <file...>",
		Short: "Add documents to the persistent index",
		Args:  cobra.MinimumNArgs(1),
		Run:   runIngest,
	})
}

func runIngest(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()
	a.headless(cmd.Context())

	failed := 0
	for _, path := range args {
		res, err := a.engine.IngestFile(path)
		if err != nil {
			failed++
			fmt.Printf("%s: %v\n", path, err)
			continue
		}
		fmt.Printf("%s: %d chunks, %d in the index\n", res.Document, res.Chunks, res.Total)
		if res.Summary != "" {
			fmt.Printf("  %s\n", res.Summary)
		}
	}
	if failed > 0 {
		exitErr("ingest", fmt.Errorf("%d of %d documents failed", failed, len(args)))
	}
}
