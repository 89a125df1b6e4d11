package dispatch

import (
	"context"
	"net/url"
	"strings"

	"github.com/fatflowers/rentpay/internal/models"
)

// DeepLinkChannel produces a WhatsApp click-to-chat link.
type DeepLinkChannel struct{}

func (DeepLinkChannel) Name() models.ReminderChannel { return models.ReminderChannelWhatsApp }

func (DeepLinkChannel) Send(_ context.Context, phone, message string) (Outcome, error) {
	return Outcome{Kind: OutcomeQueuedExternally, ExternalRef: WhatsAppURL(phone, message)}, nil
}

// WhatsAppURL builds https://wa.me/<digits>?text=<message>.
func WhatsAppURL(phone, message string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return "https://wa.me/" + digits.String() + "?text=" + url.QueryEscape(message)
}
