package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question against the persistent index",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	})
}

func runAsk(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()
	a.headless(cmd.Context())

	res, err := a.engine.Ask(strings.Join(args, " "))
	if err != nil {
		exitErr("ask", err)
	}
	fmt.Println(res.Reply)
}
