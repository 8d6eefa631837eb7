package modem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/smsbridge/smsbridge/internal/config"
)

// CLITransport drives the modem through external commands (gammu, mmcli or a
// wrapper script), keeping AT-level syntax out of the gateway. The send
// command receives SMS_RECEIVER and SMS_TEXT in its environment; the inbox
// command prints a JSON array of {sender, text, dateTimeSent} and is expected
// to remove reported messages from the SIM so they are not reported forever.
type CLITransport struct {
	sendCmd  string
	inboxCmd string
	log      zerolog.Logger
}

func NewCLITransport(cfg config.ModemConfig, log zerolog.Logger) *CLITransport {
	return &CLITransport{
		sendCmd:  cfg.SendCommand,
		inboxCmd: cfg.InboxCommand,
		log:      log.With().Str("component", "modem").Logger(),
	}
}

func (t *CLITransport) Send(ctx context.Context, receiver, text string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", t.sendCmd)
	cmd.Env = append(os.Environ(), "SMS_RECEIVER="+receiver, "SMS_TEXT="+text)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("send command: %w: %s", err, bytes.TrimSpace(out))
	}
	t.log.Debug().Str("receiver", receiver).Msg("send command completed")
	return nil
}

func (t *CLITransport) PollInbox(ctx context.Context) ([]ReceivedMessage, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", t.inboxCmd)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("inbox command: %w", err)
	}
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}

	var msgs []ReceivedMessage
	if err := json.Unmarshal(out, &msgs); err != nil {
		return nil, fmt.Errorf("decode inbox output: %w", err)
	}
	return msgs, nil
}
