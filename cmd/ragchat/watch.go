package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"ragchat/internal/service"
	"ragchat/internal/watcher"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest every new or changed document in a directory",
		Args:  cobra.ExactArgs(1),
		Run:   runWatch,
	})
}

func runWatch(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	a.headless(ctx)

	w, err := watcher.New(a.loader.Supports, 0, a.log)
	if err != nil {
		exitErr("watch", err)
	}
	defer w.Close()

	fmt.Printf("watching %s, press Ctrl+C to stop\n", args[0])
	err = watcher.Run(ctx, w, args[0], func(path string) error {
		res, err := a.engine.IngestFile(path)
		if err == nil {
			fmt.Printf("%s: %d chunks, %d in the index\n", res.Document, res.Chunks, res.Total)
		}
		return err
	}, func(path string, err error) {
		if err != nil {
			fmt.Printf("%s: %s\n", path, service.Notice(err))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		exitErr("watch", err)
	}
}
