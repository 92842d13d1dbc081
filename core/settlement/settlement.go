// Package settlement moves withdrawn funds out of the vault. The vault
// decrements its own accounting before calling a Transferer, so an
// implementation may be slow or re-enter the vault without harm.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medvault/core/logging"
)

// Payout is the body posted to a payout service.
type Payout struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	AmountWei string `json:"amountWei"`
	Requested int64  `json:"requestedAt"`
}

// WebhookTransferer asks an external payout service to send funds.
type WebhookTransferer struct {
	URL    string
	Client *http.Client
	log    zerolog.Logger
}

func NewWebhookTransferer(url string, timeout time.Duration, log zerolog.Logger) *WebhookTransferer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransferer{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		log:    logging.Component(log, "settlement"),
	}
}

func (w *WebhookTransferer) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	p := Payout{ID: uuid.NewString(), To: to.Hex(), AmountWei: amount.String(), Requested: time.Now().Unix()}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID)
	resp, err := w.Client.Do(req)
	if err != nil {
		w.log.Error().Err(err).Str("payout", p.ID).Msg("[NOTIFY] payout request failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		w.log.Error().Int("status", resp.StatusCode).Str("payout", p.ID).Msg("[NOTIFY] payout rejected")
		return fmt.Errorf("payout %s rejected: %d %s", p.ID, resp.StatusCode, bytes.TrimSpace(msg))
	}
	w.log.Info().Str("payout", p.ID).Str("to", p.To).Str("amount", p.AmountWei).Msg("[NOTIFY] payout accepted")
	return nil
}

// LogTransferer only records the payout. Used in development.
type LogTransferer struct {
	log zerolog.Logger
}

func NewLogTransferer(log zerolog.Logger) *LogTransferer {
	return &LogTransferer{log: logging.Component(log, "settlement")}
}

func (l *LogTransferer) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	l.log.Info().Str("to", to.Hex()).Str("amount", amount.String()).Msg("[NOTIFY] payout (log only)")
	return nil
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(ctx context.Context, to common.Address, amount *big.Int) error

func (f TransferFunc) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return f(ctx, to, amount)
}
