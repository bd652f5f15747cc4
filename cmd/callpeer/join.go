package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/chat"
	"github.com/mossy-p/call-signaling/internal/client"
	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/negotiation"
)

const dialTimeout = 10 * time.Second

var flagNoMedia bool

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and chat",
	Long: `Join a room on the relay.

With media (the default) callpeer offers synthetic audio and video to the
next participant that arrives. With --no-media it only answers offers.

Examples:
  callpeer join standup
  callpeer join standup --no-media --server wss://signal.example.com/ws/signal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), strings.TrimSpace(args[0]), os.Stdin)
	},
}

func init() {
	joinCmd.Flags().BoolVar(&flagNoMedia, "no-media", false, "join without local tracks and only answer")
}

func joinRoom(parent context.Context, roomID string, in io.Reader) error {
	cfg, err := config.LoadClient(config.ClientOptions{
		SignalingURL: flagServer,
		STUNServer:   flagSTUN,
		LogLevel:     flagLogLevel,
	})
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var media *negotiation.LocalMedia
	if !flagNoMedia {
		if media, err = negotiation.NewSyntheticMedia("callpeer-" + uuid.NewString()[:8]); err != nil {
			return err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	p, err := client.Join(dialCtx, client.Options{
		URL:        cfg.SignalingURL,
		RoomID:     roomID,
		ICEServers: negotiation.ICEServers(cfg.STUNServer),
		Media:      media,
		OnStateChange: func(s negotiation.State) {
			printStatus(s.String())
		},
		OnChat: printChat,
		Logger: logger,
	})
	cancel()
	if err != nil {
		return err
	}
	defer p.Close()

	printTitle("callpeer")
	printInfo("room " + roomID + " as " + p.ID())
	if media == nil {
		printInfo("no local media, waiting for an offer")
	}

	lines := make(chan string)
	go readLines(in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.Done():
			return errors.New("relay connection lost")
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return nil
			}
			if err := p.Chat().Send(line); err != nil {
				if errors.Is(err, chat.ErrEmptyMessage) {
					continue
				}
				printError(err.Error())
			}
		}
	}
}

func readLines(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
