package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/toolutil"
)

func newAskCmd() *cobra.Command {
	var showAnalysis bool
	cmd := &cobra.Command{
		Use:   "ask <url> <question>",
		Short: "Load a video and answer one question about it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.LoadVideo(ctx, args[0])
			if err != nil {
				return errors.New(engine.UserMessage(err))
			}
			out := cmd.OutOrStdout()
			if showAnalysis {
				data, err := json.MarshalIndent(toolutil.NewLoadOutput(res).Analysis, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n\n", data)
			}

			reply, err := a.svc.Chat(ctx, res.Bundle.VideoID, args[1])
			if err != nil {
				return errors.New(engine.UserMessage(err))
			}
			fmt.Fprintln(out, reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showAnalysis, "analysis", false, "print the video analysis before the answer")
	return cmd
}
