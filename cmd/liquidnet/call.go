package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"liquidnet/catalog"
	"liquidnet/client"
	"liquidnet/config"
	"liquidnet/loadbalance"
	"liquidnet/middleware"
	"liquidnet/packet"
	"liquidnet/registry"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Send a packet to a server and print the reply",
	Long: `Send one server-bound packet and print the reply as JSON.

With --addr the call goes straight to that server; otherwise servers are
discovered through the registry of the client config.`,
}

var callInviteCmd = &cobra.Command{
	Use:   "invite <username>",
	Short: "Invite a player to the party",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, args[0], catalog.C2SInvitePartyMember{Username: args[0]})
	},
}

var callUnfriendCmd = &cobra.Command{
	Use:   "unfriend <friend-id>",
	Short: "Stop being friends with a player",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil || id < 0 {
			return fmt.Errorf("invalid friend id %q", args[0])
		}
		return runCall(cmd, "", catalog.C2SStopBeingFriends{FriendID: int32(id)})
	},
}

var callSkinCmd = &cobra.Command{
	Use:   "skin <file>",
	Short: "Upload a raw 16x16 RGBA head skin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skin, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return runCall(cmd, "", catalog.C2SUpdateSkin{Skin: skin})
	},
}

func init() {
	callCmd.PersistentFlags().String("addr", "", "server address, bypasses discovery")
	callCmd.PersistentFlags().String("codec", "", "binary or json, overrides the config file")
	callCmd.AddCommand(callInviteCmd)
	callCmd.AddCommand(callUnfriendCmd)
	callCmd.AddCommand(callSkinCmd)
}

func runCall(cmd *cobra.Command, key string, req packet.Packet) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.DefaultClient()
	if configPath != "" {
		if cfg, err = config.LoadClient(configPath); err != nil {
			return err
		}
	}
	if raw, _ := cmd.Flags().GetString("codec"); raw != "" {
		if cfg.Codec, err = config.ParseCodec(raw); err != nil {
			return err
		}
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cat, err := catalog.New()
	if err != nil {
		return err
	}

	var reg registry.Registry
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		mem := registry.NewMemoryRegistry()
		if err := mem.Register(ctx, cfg.ServiceName, registry.ServiceInstance{Addr: addr, Weight: 1}, 0); err != nil {
			return err
		}
		reg = mem
	} else if reg, err = openRegistry(cfg.Registry, logger); err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { err = multierr.Append(err, reg.Close()) }()

	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return err
	}
	c, err := client.NewClient(reg, cat, client.Options{
		ServiceName: cfg.ServiceName,
		Balancer:    bal,
		CodecType:   cfg.Codec,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, c.Close()) }()

	c.Use(middleware.LoggingMiddleware(logger))
	if cfg.Retries > 0 {
		c.Use(middleware.RetryMiddleware(cfg.Retries, cfg.RetryDelay, logger))
	}
	c.Use(middleware.TimeOutMiddleware(cfg.CallTimeout))

	reply, err := c.Call(ctx, key, req)
	if err != nil {
		return err
	}
	return printReply(cmd, reply)
}

func printReply(cmd *cobra.Command, reply packet.Packet) error {
	out := struct {
		Packet string        `json:"packet"`
		Reply  packet.Packet `json:"reply,omitempty"`
	}{Packet: "ack"}
	if reply != nil {
		out.Packet = fmt.Sprintf("%s:%d", reply.Bound(), reply.ID())
		out.Reply = reply
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
