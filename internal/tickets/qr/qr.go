package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-booking/internal/models"
)

// TicketPayload is what a ticket QR code encodes, sealed with the service key.
type TicketPayload struct {
	BookingID int64     `json:"booking_id"`
	EventID   int64     `json:"event_id"`
	UserID    int64     `json:"user_id"`
	Seats     int       `json:"seats"`
	EventDate time.Time `json:"event_date,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

type Generator struct {
	aead cipher.AEAD
	size int
}

func NewGenerator(secret string) (*Generator, error) {
	if secret == "" {
		return nil, fmt.Errorf("ticket secret is empty")
	}
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead, size: 256}, nil
}

func PayloadFor(b *models.Booking) TicketPayload {
	p := TicketPayload{
		BookingID: b.ID,
		EventID:   b.EventID,
		UserID:    b.UserID,
		Seats:     b.Seats,
		IssuedAt:  time.Now().UTC(),
	}
	if b.Event != nil {
		p.EventDate = b.Event.Date
	}
	return p
}

// Ticket renders the booking's QR code as PNG.
func (g *Generator) Ticket(b *models.Booking) ([]byte, error) {
	token, err := g.Seal(PayloadFor(b))
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, g.size)
}

func (g *Generator) Seal(p TicketPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open verifies and decodes a token produced by Seal.
func (g *Generator) Open(token string) (*TicketPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, models.Invalidf("malformed ticket token")
	}
	n := g.aead.NonceSize()
	if len(raw) < n {
		return nil, models.Invalidf("malformed ticket token")
	}
	data, err := g.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, models.Invalidf("ticket token failed verification")
	}
	var p TicketPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, models.Invalidf("ticket token payload: %v", err)
	}
	return &p, nil
}
