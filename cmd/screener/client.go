package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hr-voice-lab/internal/mcp"
	"github.com/hr-voice-lab/internal/transcript"
)

var (
	mcpURL      string
	outPath     string
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <number>",
	Short: "Place a screening call through a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *mcp.ClientWrapper) error {
			out, err := c.PlaceCall(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <callSid>",
	Short: "Print the stored transcript of a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *mcp.ClientWrapper) error {
			rec, err := c.Transcript(ctx, args[0])
			if err != nil {
				return err
			}
			return emitRecord(cmd.OutOrStdout(), rec)
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <callSid>",
	Short: "Generate and store a summary of a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *mcp.ClientWrapper) error {
			rec, err := c.Summarize(ctx, args[0])
			if err != nil {
				return err
			}
			return emitRecord(cmd.OutOrStdout(), rec)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{callCmd, transcriptCmd, summaryCmd} {
		c.Flags().StringVar(&mcpURL, "mcp-url", "ws://127.0.0.1:5000/mcp/ws", "MCP websocket endpoint of a running server")
		c.Flags().DurationVar(&callTimeout, "timeout", 90*time.Second, "overall request timeout")
	}
	transcriptCmd.Flags().StringVar(&outPath, "out", "", "write the record as JSON to this file instead of stdout")
	summaryCmd.Flags().StringVar(&outPath, "out", "", "write the record as JSON to this file instead of stdout")
}

func withClient(cmd *cobra.Command, fn func(context.Context, *mcp.ClientWrapper) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	c := mcp.NewClientWrapper("screener-cli", version)
	if err := c.ConnectWebSocket(ctx, mcpURL); err != nil {
		return fmt.Errorf("connect %s: %w", mcpURL, err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func emitRecord(w io.Writer, rec *transcript.Record) error {
	if outPath != "" {
		if err := transcript.ExportJSON(outPath, rec); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", outPath)
		return nil
	}
	return printJSON(w, rec)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
