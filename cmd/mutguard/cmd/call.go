package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/solatis/mutguard/internal/core/server"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [request-json]",
	Short: "Call a method on a running guard service",
	Long: `Sends one request to a guard service and prints the response as JSON.
Methods: Create, Get, Set, SetPath, DeletePath, Invoke, Freeze, Reset,
Snapshot, History, List. The API key is read from MG_API_KEY.

Example:
  mutguard call Create '{"name":"flags","value":{"beta":false},"maxMutations":1}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().String("addr", "localhost:50051", "guard service address")
	callCmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
}

func runCall(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	req := &structpb.Struct{}
	if len(args) == 2 {
		if err := protojson.Unmarshal([]byte(args[1]), req); err != nil {
			return fmt.Errorf("invalid request JSON: %w", err)
		}
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := server.NewClient(conn, os.Getenv("MG_API_KEY"))
	resp, err := client.Call(ctx, args[0], req)
	if err != nil {
		return err
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
