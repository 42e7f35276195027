package mail

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// Sender formats and submits one message for a single provider's API.
type Sender interface {
	Send(ctx context.Context, accessToken string, msg domain.MailMessage) error
}

// Dispatcher routes a send to the provider-specific sender. Success is judged
// purely on the provider API's HTTP status.
type Dispatcher struct {
	senders map[domain.Provider]Sender
	lg      zerolog.Logger
}

func NewDispatcher(lg zerolog.Logger) *Dispatcher {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &Dispatcher{
		senders: map[domain.Provider]Sender{
			domain.ProviderGoogle:    NewGmailSender(httpClient),
			domain.ProviderMicrosoft: NewGraphSender(httpClient),
		},
		lg: lg.With().Str("component", "mail_dispatcher").Logger(),
	}
}

func (d *Dispatcher) Send(ctx context.Context, accessToken string, provider domain.Provider, msg domain.MailMessage) error {
	sender, ok := d.senders[provider]
	if !ok {
		return domain.ErrUnsupportedProvider(string(provider))
	}

	if err := sender.Send(ctx, accessToken, msg); err != nil {
		d.lg.Warn().Err(err).Str("provider", string(provider)).Msg("mail send failed")
		return err
	}

	d.lg.Info().
		Str("provider", string(provider)).
		Int("recipients", len(msg.To)).
		Int("attachments", len(msg.Attachments)).
		Msg("mail sent")
	return nil
}
