// cmd/syncctl is the CLI client built with Cobra.
//
// Usage:
//
//	syncctl connect --server ws://localhost:8080/sync --node-id client1
//	syncctl watch   --server ws://localhost:8080/sync --node-id client1
//	syncctl add     --server ws://localhost:8080/sync --node-id client1 --type note --payload '{"text":"hi"}'
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"actionsync/internal/action"
	"actionsync/internal/alog"
	"actionsync/internal/node"
	"actionsync/internal/reconnect"
	"actionsync/internal/store"
	"actionsync/internal/wsconn"
)

var (
	serverURL string
	nodeID    string
	token     string
	timeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "syncctl",
		Short: "CLI client for an action-log sync server",
	}

	root.PersistentFlags().StringVarP(&serverURL, "server", "s",
		"ws://localhost:8080/sync", "Sync server WebSocket URL")
	root.PersistentFlags().StringVar(&nodeID, "node-id", "", "This client's node id (derived from the current time if empty)")
	root.PersistentFlags().StringVar(&token, "token", "", "Bearer token sent as handshake credentials")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Handshake timeout")

	root.AddCommand(connectCmd(), watchCmd(), addCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dial builds a ClientNode over a Reconnect-wrapped WebSocket connection
// and an in-memory Log, the shape every subcommand shares.
func dial(ping time.Duration) (*alog.Log, *node.ClientNode, func(), error) {
	id := nodeID
	if id == "" {
		id = fmt.Sprintf("syncctl-%d", time.Now().UnixNano())
	}

	log, err := alog.New(id, store.NewMemory(), alog.Options{})
	if err != nil {
		return nil, nil, nil, err
	}

	conn := wsconn.Dial(serverURL)
	rc := reconnect.New(conn, reconnect.DefaultOptions(), nil)

	opts := node.Options{Ping: ping, Timeout: timeout, FixTime: true}
	if token != "" {
		opts.Token = token
	}

	client, err := node.NewClient(log, rc, opts)
	if err != nil {
		rc.Destroy()
		return nil, nil, nil, err
	}

	cleanup := func() { client.Destroy() }
	return log, client, cleanup, nil
}

// waitAuthenticated blocks until client completes its handshake or ctx is
// done, whichever comes first.
func waitAuthenticated(ctx context.Context, client *node.ClientNode) error {
	done := make(chan struct{})
	unsub := client.OnState(func() {
		if client.Authenticated() {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer unsub()

	if client.Authenticated() {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("syncctl: handshake did not complete: %w", ctx.Err())
	}
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect once and print handshake status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, cleanup, err := dial(0)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := client.Connect(ctx); err != nil {
				return err
			}
			if err := waitAuthenticated(ctx, client); err != nil {
				return err
			}

			fmt.Printf("connected: remote=%s timeFix=%dms\n", client.RemoteNodeID(), client.TimeFix())
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Connect and print every action synced from the peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			alogInst, client, cleanup, err := dial(10 * time.Second)
			if err != nil {
				return err
			}
			defer cleanup()

			alogInst.OnAdd(func(act action.Action, meta *action.Meta) {
				data, _ := json.Marshal(act)
				fmt.Printf("[%s] %s\n", meta.ID, string(data))
			})

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := client.Connect(ctx); err != nil {
				cancel()
				return err
			}
			err = waitAuthenticated(ctx, client)
			cancel()
			if err != nil {
				return err
			}
			fmt.Printf("watching as %s, connected to %s\n", alogInst.NodeID(), client.RemoteNodeID())

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var actionType string
	var payload string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect, add one action, wait for it to sync, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			alogInst, client, cleanup, err := dial(0)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := client.Connect(ctx); err != nil {
				return err
			}
			if err := waitAuthenticated(ctx, client); err != nil {
				return err
			}

			act := action.Action{"type": actionType}
			if payload != "" {
				var body map[string]any
				if err := json.Unmarshal([]byte(payload), &body); err != nil {
					return fmt.Errorf("syncctl: invalid --payload JSON: %w", err)
				}
				for k, v := range body {
					act[k] = v
				}
			}

			synced := make(chan struct{})
			unsub := client.OnSynced(func() {
				select {
				case <-synced:
				default:
					close(synced)
				}
			})
			defer unsub()

			meta, ok, err := alogInst.Add(ctx, act, &action.Meta{Reasons: []string{"syncctl"}})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("syncctl: action already exists")
			}

			select {
			case <-synced:
			case <-ctx.Done():
				return fmt.Errorf("syncctl: timed out waiting for sync ack: %w", ctx.Err())
			}

			fmt.Printf("added %s\n", meta.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actionType, "type", "", "Action type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "Additional action fields as a JSON object")
	cmd.MarkFlagRequired("type")
	return cmd
}
