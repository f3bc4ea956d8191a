package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logsLimit int64

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the newest entries of the Redis log sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadServices("text")
		if err != nil {
			return err
		}
		sink := s.openSink()
		if sink == nil {
			return errors.New("log sink unavailable, set REDIS_ADDR")
		}
		defer sink.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		records, err := sink.Recent(ctx, logsLimit)
		if err != nil {
			return err
		}
		// Oldest first reads naturally in a terminal.
		for i := len(records) - 1; i >= 0; i-- {
			rec := records[i]
			fmt.Printf("%s %-5s %s %s: %s\n", rec.Timestamp.Format(time.TimeOnly), rec.Level, rec.RequestID, rec.Model, rec.Message)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().Int64VarP(&logsLimit, "limit", "n", 20, "number of entries")
}
