package dto

import (
	"encoding/base64"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

var validate = validator.New()

// SendMailRequest is the wire shape for POST .../send. Attachment content is
// standard base64; it is decoded here so the application layer only ever sees
// raw bytes.
type SendMailRequest struct {
	To          []string            `json:"to" validate:"required,min=1,dive,required,email"`
	Cc          []string            `json:"cc" validate:"omitempty,dive,required,email"`
	Subject     string              `json:"subject" validate:"required"`
	HTMLBody    string              `json:"html_body" validate:"required"`
	Attachments []AttachmentRequest `json:"attachments" validate:"omitempty,dive"`
}

type AttachmentRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type"`
	Content     string `json:"content" validate:"required,base64"`
}

func (r *SendMailRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return mapValidationError(err)
	}
	return nil
}

func (r *SendMailRequest) ToMessage() (domain.MailMessage, error) {
	msg := domain.MailMessage{
		To:       r.To,
		Cc:       r.Cc,
		Subject:  r.Subject,
		HTMLBody: r.HTMLBody,
	}
	for _, att := range r.Attachments {
		content, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return domain.MailMessage{}, domain.ErrInvalidField("attachments.content", "not valid base64")
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     content,
		})
	}
	return msg, nil
}

// CancelAttemptRequest reports a UI-side popup event for a pending attempt.
type CancelAttemptRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=closed blocked"`
}

func (r *CancelAttemptRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return mapValidationError(err)
	}
	return nil
}

func mapValidationError(err error) error {
	var verrs validator.ValidationErrors
	ok := false
	if ve, isVE := err.(validator.ValidationErrors); isVE {
		verrs = ve
		ok = true
	}
	if !ok || len(verrs) == 0 {
		return domain.ErrInvalidField("body", "validation failed")
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		return domain.ErrMissingField(field)
	}
	return domain.ErrInvalidField(field, "failed "+fe.Tag()+" validation")
}
