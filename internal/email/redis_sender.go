package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CapturedEmailTTL is how long a captured message stays readable.
const CapturedEmailTTL = 5 * time.Minute

// CapturedEmail is the JSON stored for each captured message.
type CapturedEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// CaptureKey is the Redis key a message to recipient of the given kind is
// stored under.
func CaptureKey(recipient, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", recipient, kind)
}

// RedisSender stores messages in Redis instead of sending them. It backs
// MOCK_SERVICES runs and the service API getTestEmail method.
type RedisSender struct {
	client redis.Cmdable
}

func NewRedisSender(client redis.Cmdable) Sender {
	return &RedisSender{client: client}
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	captured := CapturedEmail{
		To:      strings.Join(to, ", "),
		Subject: subject,
		Kind:    "unknown",
		Body:    string(rawMessage),
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if msg, err := mail.ReadMessage(bytes.NewReader(rawMessage)); err == nil {
		captured.From = msg.Header.Get("From")
		if kind := msg.Header.Get(KindHeader); kind != "" {
			captured.Kind = kind
		}
	}

	jsonData, err := json.Marshal(captured)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, recipient := range to {
		key := CaptureKey(recipient, captured.Kind)
		if err := s.client.Set(ctx, key, jsonData, CapturedEmailTTL).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		log.Printf("Mock email stored in Redis key '%s' (Subject: %s)", key, subject)
	}
	return nil
}
