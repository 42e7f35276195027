package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

func captureGraphSend(t *testing.T, status int, msg domain.MailMessage) (map[string]any, error) {
	t.Helper()

	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("payload not json: %v", err)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewGraphSender(srv.Client()).WithSendURL(srv.URL)
	err := s.Send(context.Background(), "tok", msg)
	return payload, err
}

func TestGraphSender_EnvelopeShape(t *testing.T) {
	t.Parallel()

	content := []byte{0x01, 0x02, 0xff}
	payload, err := captureGraphSend(t, http.StatusAccepted, domain.MailMessage{
		To:       []string{"a@example.com"},
		Cc:       []string{"c@example.com"},
		Subject:  "Case update",
		HTMLBody: "<p>Hi</p>",
		Attachments: []domain.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: content},
		},
	})
	if err != nil {
		t.Fatalf("send err: %v", err)
	}

	msg, ok := payload["message"].(map[string]any)
	if !ok {
		t.Fatalf("missing message envelope: %v", payload)
	}
	if payload["saveToSentItems"] != true {
		t.Fatalf("saveToSentItems = %v", payload["saveToSentItems"])
	}
	if msg["subject"] != "Case update" {
		t.Fatalf("subject = %v", msg["subject"])
	}

	body := msg["body"].(map[string]any)
	if body["contentType"] != "HTML" || body["content"] != "<p>Hi</p>" {
		t.Fatalf("body = %v", body)
	}

	to := msg["toRecipients"].([]any)
	addr := to[0].(map[string]any)["emailAddress"].(map[string]any)["address"]
	if addr != "a@example.com" {
		t.Fatalf("to address = %v", addr)
	}

	atts := msg["attachments"].([]any)
	att := atts[0].(map[string]any)
	if att["@odata.type"] != "#microsoft.graph.fileAttachment" {
		t.Fatalf("odata type = %v", att["@odata.type"])
	}
	if att["name"] != "report.pdf" || att["contentType"] != "application/pdf" {
		t.Fatalf("attachment = %v", att)
	}
	if att["contentBytes"] != base64.StdEncoding.EncodeToString(content) {
		t.Fatalf("contentBytes = %v", att["contentBytes"])
	}
}

func TestGraphSender_StatusMapping(t *testing.T) {
	t.Parallel()

	msg := domain.MailMessage{To: []string{"a@example.com"}, Subject: "s", HTMLBody: "b"}

	if _, err := captureGraphSend(t, http.StatusForbidden, msg); !domain.Is(err, "reauth_required") {
		t.Fatalf("403 err = %v, want reauth_required", err)
	} else if !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("403 err = %v, rejection status not carried", err)
	}
	if _, err := captureGraphSend(t, http.StatusBadGateway, msg); !domain.Is(err, "network_error") {
		t.Fatalf("502 err = %v, want network_error", err)
	}
	// 202 is the normal Graph success status.
	if _, err := captureGraphSend(t, http.StatusAccepted, msg); err != nil {
		t.Fatalf("202 err = %v", err)
	}
}

func TestDispatcher_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(zerolog.Nop())
	err := d.Send(context.Background(), "tok", domain.Provider("yahoo"), domain.MailMessage{})
	if !domain.Is(err, "unsupported_provider") {
		t.Fatalf("err = %v, want unsupported_provider", err)
	}
}
