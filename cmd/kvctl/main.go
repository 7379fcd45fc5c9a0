// cmd/kvctl is the CLI entry-point built with Cobra.
//
// Usage:
//
//	kvctl put mykey "hello world"             --server http://localhost:8080
//	kvctl get mykey                           --server http://localhost:8080
//	kvctl delete mykey --context '{"n1":2}'   --server http://localhost:8080
//	kvctl metrics                             --server http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/client"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

var (
	serverAddr string
	timeout    time.Duration
	flagN      int
	flagW      int
	flagR      int
	flagCtx    string
)

func main() {
	root := &cobra.Command{
		Use:   "kvctl",
		Short: "CLI client for the replicated KV store",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "node address to talk to")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")
	root.PersistentFlags().IntVar(&flagN, "n", 0, "replication factor override (0 = node default)")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), metricsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseContext() (vclock.Clock, error) {
	if flagCtx == "" {
		return nil, nil
	}
	var c vclock.Clock
	if err := json.Unmarshal([]byte(flagCtx), &c); err != nil {
		return nil, fmt.Errorf("invalid --context: %w", err)
	}
	return c, nil
}

func putCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Write a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctxClock, err := parseContext()
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), args[0], args[1], ctxClock, client.Quorum{N: flagN, W: flagW})
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&flagW, "w", 0, "write quorum override (0 = node default)")
	cmd.Flags().StringVar(&flagCtx, "context", "", "vector clock JSON carried forward from a prior get")
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read every sibling version of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Get(context.Background(), args[0], client.Quorum{N: flagN, R: flagR})
			if err != nil {
				return err
			}
			if len(resp.Versions) == 0 {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if len(resp.Versions) > 1 {
				fmt.Fprintf(os.Stderr, "warning: %d concurrent siblings, resolve and write back\n", len(resp.Versions))
			}
			prettyPrint(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&flagR, "r", 0, "read quorum override (0 = node default)")
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctxClock, err := parseContext()
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			if err := c.Delete(context.Background(), args[0], ctxClock, client.Quorum{N: flagN, W: flagW}); err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&flagW, "w", 0, "write quorum override (0 = node default)")
	cmd.Flags().StringVar(&flagCtx, "context", "", "vector clock JSON of the version being deleted")
	return cmd
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the node's metrics snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			snap, err := c.MetricsSnapshot(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(snap)
			return nil
		},
	}
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
