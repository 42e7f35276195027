package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

const graphSendMailURL = "https://graph.microsoft.com/v1.0/me/sendMail"

// GraphSender submits messages through the Microsoft Graph sendMail action.
// Graph answers 202 Accepted with no body on success.
type GraphSender struct {
	httpClient *http.Client
	sendURL    string
}

func NewGraphSender(httpClient *http.Client) *GraphSender {
	return &GraphSender{httpClient: httpClient, sendURL: graphSendMailURL}
}

func (s *GraphSender) WithSendURL(u string) *GraphSender {
	s.sendURL = u
	return s
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type graphMessage struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ToRecipients []graphRecipient  `json:"toRecipients"`
	CcRecipients []graphRecipient  `json:"ccRecipients,omitempty"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

type graphSendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

func (s *GraphSender) Send(ctx context.Context, accessToken string, msg domain.MailMessage) error {
	payload, err := json.Marshal(buildGraphRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal graph payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build graph request: %w", err)
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
		return graphStatusError(resp.StatusCode, body)
	}
	return nil
}

func graphStatusError(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return domain.ErrReauthRequired(fmt.Errorf("graph sendMail rejected with status %d", status))
	}
	return domain.ErrNetwork(fmt.Errorf("graph sendMail failed with status %d: %s", status, body))
}

func buildGraphRequest(msg domain.MailMessage) graphSendMailRequest {
	var gm graphMessage
	gm.Subject = msg.Subject
	gm.Body.ContentType = "HTML"
	gm.Body.Content = msg.HTMLBody
	gm.ToRecipients = toGraphRecipients(msg.To)
	gm.CcRecipients = toGraphRecipients(msg.Cc)

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		gm.Attachments = append(gm.Attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  contentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	return graphSendMailRequest{Message: gm, SaveToSentItems: true}
}

func toGraphRecipients(addrs []string) []graphRecipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]graphRecipient, 0, len(addrs))
	for _, a := range addrs {
		var r graphRecipient
		r.EmailAddress.Address = a
		out = append(out, r)
	}
	return out
}
