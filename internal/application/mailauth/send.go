package mailauth

import (
	"context"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/metrics"
)

// Status describes one identity key for the UI.
type Status struct {
	Connected    bool             `json:"connected"`
	ExpiringSoon bool             `json:"expiring_soon"`
	UserInfo     *domain.UserInfo `json:"user_info,omitempty"`
}

// SendMail obtains a valid access token for the identity key (refreshing if
// possible) and dispatches the message through the provider's send API.
func (s *Service) SendMail(ctx context.Context, country, provider string, msg domain.MailMessage) error {
	accessToken, err := s.ValidAccessToken(ctx, country, provider)
	if err != nil {
		return err
	}
	key := domain.NewIdentityKey(country, domain.Provider(provider))

	if err := s.dispatcher.Send(ctx, accessToken, key.Provider, msg); err != nil {
		metrics.MailSendTotal.WithLabelValues(provider, "error").Inc()
		return err
	}

	metrics.MailSendTotal.WithLabelValues(provider, "success").Inc()
	s.publish(ctx, "mail.sent", map[string]any{
		"country":     key.Country,
		"provider":    provider,
		"recipients":  len(msg.To),
		"attachments": len(msg.Attachments),
	})
	return nil
}

// ConnectionStatus reports whether the identity key has stored credentials
// and the display profile that goes with them. Expiry is reported but not
// acted on here; sends trigger the actual refresh-or-clear decision.
func (s *Service) ConnectionStatus(ctx context.Context, country, provider string) (*Status, error) {
	if !domain.IsValidProvider(provider) {
		return nil, domain.ErrUnsupportedProvider(provider)
	}
	key := domain.NewIdentityKey(country, domain.Provider(provider))

	tokens, err := s.tokens.GetTokens(ctx, key)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return &Status{Connected: false}, nil
	}

	info, err := s.tokens.GetUserInfo(ctx, key)
	if err != nil {
		return nil, err
	}

	return &Status{
		Connected:    true,
		ExpiringSoon: tokens.ExpiresWithin(s.now(), s.soonSkew),
		UserInfo:     info,
	}, nil
}
