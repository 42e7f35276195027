package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

const gmailSendURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// GmailSender builds an RFC 2822 multipart message and submits it through the
// Gmail API as a base64url "raw" payload.
type GmailSender struct {
	httpClient *http.Client
	sendURL    string
}

func NewGmailSender(httpClient *http.Client) *GmailSender {
	return &GmailSender{httpClient: httpClient, sendURL: gmailSendURL}
}

// WithSendURL overrides the API endpoint. Test hook.
func (s *GmailSender) WithSendURL(u string) *GmailSender {
	s.sendURL = u
	return s
}

func (s *GmailSender) Send(ctx context.Context, accessToken string, msg domain.MailMessage) error {
	raw := buildMIMEMessage(msg)

	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString([]byte(raw)),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal gmail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gmail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.ErrNetwork(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return gmailStatusError(resp.StatusCode, body)
	}
	return nil
}

func gmailStatusError(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return domain.ErrReauthRequired(fmt.Errorf("gmail send rejected with status %d", status))
	}
	return domain.ErrNetwork(fmt.Errorf("gmail send failed with status %d: %s", status, body))
}

// buildMIMEMessage renders the message as multipart/mixed. The boundary is
// derived from a fresh uuid and repeated verbatim before each part and in the
// closing delimiter.
func buildMIMEMessage(msg domain.MailMessage) string {
	boundary := "mail_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var b strings.Builder
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	if len(msg.Cc) > 0 {
		b.WriteString("Cc: " + strings.Join(msg.Cc, ", ") + "\r\n")
	}
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody + "\r\n")

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "; name=\"" + att.Filename + "\"\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + att.Filename + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(att.Content) + "\r\n")
	}

	b.WriteString("--" + boundary + "--")
	return b.String()
}
