package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lantelyes/curiosity-engine/internal/config"
	"github.com/lantelyes/curiosity-engine/internal/earnings"
	"github.com/lantelyes/curiosity-engine/internal/interview"
	"github.com/lantelyes/curiosity-engine/internal/openai"
	"github.com/lantelyes/curiosity-engine/internal/realtime"
	"github.com/lantelyes/curiosity-engine/internal/store"
	"github.com/lantelyes/curiosity-engine/internal/topics"
	"github.com/lantelyes/curiosity-engine/internal/transcript"
)

// credentialIssuer adapts the vendor client to the interview session.
type credentialIssuer struct {
	client *openai.RealtimeClient
}

func (i credentialIssuer) IssueCredential(ctx context.Context) (string, error) {
	cred, err := i.client.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

func newCallCmd() *cobra.Command {
	var (
		topicID  string
		userID   string
		audio    string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Run a voice conversation from the terminal",
		Long: `Runs one paid conversation against the realtime vendor, streaming audio
from a raw PCM file (48kHz mono 16-bit little-endian). Earnings accrue
while connected and are recorded to the ledger when the call ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, topicID, userID, audio, duration)
		},
	}

	cmd.Flags().StringVar(&topicID, "topic", "", "topic to discuss (see 'topics')")
	cmd.Flags().StringVar(&userID, "user", "", "user the earnings accrue to")
	cmd.Flags().StringVar(&audio, "audio", "", "path to raw PCM capture file")
	cmd.Flags().DurationVar(&duration, "duration", 0, "end the call after this long (0 = until interrupted)")
	cmd.MarkFlagRequired("topic")
	cmd.MarkFlagRequired("user")
	return cmd
}

func runCall(cmd *cobra.Command, topicID, userID, audio string, duration time.Duration) error {
	out := cmd.OutOrStdout()
	cfg := config.Load()

	topic, ok := topics.ByID(topicID)
	if !ok {
		return fmt.Errorf("unknown topic %q", topicID)
	}

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := st.AutoMigrate(); err != nil {
		return err
	}
	ledger := earnings.NewFallbackLedger(st)

	client := openai.NewRealtimeClient(cfg.OpenAIKey, cfg.RealtimeModel, cfg.OpenAIBaseURL)

	var capture realtime.CaptureDevice
	if audio != "" {
		capture = realtime.NewFileCapture(audio)
	}

	newConn := func(cb realtime.Callbacks) realtime.Conn {
		if cfg.Transport == "websocket" {
			return realtime.NewWSChannel(realtime.WSChannelConfig{
				URL:       client.WebSocketURL(),
				Capture:   capture,
				Callbacks: cb,
			})
		}
		return realtime.NewBridge(realtime.BridgeConfig{
			Signaler:       client,
			Capture:        capture,
			ICEServersJSON: cfg.ICEServersJSON,
			Callbacks:      cb,
		})
	}

	session, err := interview.NewSession(interview.Config{
		UserID:  userID,
		Topic:   topic,
		Issuer:  credentialIssuer{client: client},
		NewConn: newConn,
		Ledger:  ledger,
		Hooks: interview.Hooks{
			OnOpen: func() {
				fmt.Fprintf(out, "Connected. Talking about %s at $%.2f/min.\n", topic.Name, topic.RatePerMinute)
			},
			OnEntry: func(e transcript.Entry) {
				fmt.Fprintf(out, "[%s] %s\n", e.Role, e.Text)
			},
			OnError: func(err error) {
				log.Printf("call error: %v", err)
			},
		},
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if duration > 0 {
		select {
		case <-time.After(duration):
		case sig := <-sigChan:
			log.Printf("interrupted: %v", sig)
		}
	} else {
		sig := <-sigChan
		log.Printf("interrupted: %v", sig)
	}

	entry, err := session.End(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCall ended: earned $%.2f over %ds.\n", entry.Amount, entry.DurationSeconds)
	return nil
}
