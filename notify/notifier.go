// Package notify implements spec.md §4.10: claim-then-send webhook delivery
// for price-change and back-in-stock events.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricewatch/models"
	"pricewatch/repository"
)

const notConfiguredMessage = "DISCORD_WEBHOOK_URL not configured"

// Notifier sends webhook alerts for price/stock transitions, claiming the
// at-most-once slot via NotificationRepository before ever attempting the
// side effect. Grounded on the teacher's scraper/docker_ocr_extractor.go
// marshal-POST-unmarshal HTTP shape, reused here for a fire-and-forget POST
// with no response body to decode.
type Notifier struct {
	notifications *repository.NotificationRepository
	client        *http.Client
	webhookURL    string
}

func NewNotifier(notifications *repository.NotificationRepository, webhookURL string) *Notifier {
	return &Notifier{
		notifications: notifications,
		client:        &http.Client{Timeout: 10 * time.Second},
		webhookURL:    webhookURL,
	}
}

// NotifyPriceChanged claims and sends a PRICE_CHANGED event. No-op if the
// (itemId, snapshotId, eventType) slot was already claimed by a concurrent run.
func (n *Notifier) NotifyPriceChanged(item *models.TrackedItem, snapshot *models.PriceSnapshot, oldPriceCents *int64) error {
	claimed, err := n.notifications.Claim(item.ID, snapshot.ID, models.EventPriceChanged)
	if err != nil {
		return err
	}
	if claimed == nil {
		return nil
	}

	body := fmt.Sprintf(
		"**Price Change Detected**\nProduct: %s\nOld Price: %s\nNew Price: %s\nLink: %s\nChecked: %s",
		snapshot.ProductName,
		formatPriceOrUnknown(oldPriceCents),
		formatPriceOrUnknown(snapshot.PriceCents),
		item.URL,
		snapshot.CheckedAt.UTC().Format(time.RFC3339),
	)
	return n.send(claimed.ID, body)
}

// NotifyBackInStock claims and sends a BACK_IN_STOCK event.
func (n *Notifier) NotifyBackInStock(item *models.TrackedItem, snapshot *models.PriceSnapshot) error {
	claimed, err := n.notifications.Claim(item.ID, snapshot.ID, models.EventBackInStock)
	if err != nil {
		return err
	}
	if claimed == nil {
		return nil
	}

	body := fmt.Sprintf(
		"**Back In Stock**\nProduct: %s\nNew Price: %s\nLink: %s\nChecked: %s",
		snapshot.ProductName,
		formatPriceOrUnknown(snapshot.PriceCents),
		item.URL,
		snapshot.CheckedAt.UTC().Format(time.RFC3339),
	)
	return n.send(claimed.ID, body)
}

// send performs the webhook POST and records the outcome on the claimed row.
func (n *Notifier) send(notificationID int64, content string) error {
	if strings.TrimSpace(n.webhookURL) == "" {
		return n.notifications.MarkSent(notificationID, 0, notConfiguredMessage)
	}

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return n.notifications.MarkSent(notificationID, 0, err.Error())
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return n.notifications.MarkSent(notificationID, 0, err.Error())
	}
	defer resp.Body.Close()

	respBody := make([]byte, 0, 1024)
	buf := make([]byte, 1024)
	for {
		nRead, rerr := resp.Body.Read(buf)
		if nRead > 0 {
			respBody = append(respBody, buf[:nRead]...)
		}
		if rerr != nil || len(respBody) >= 1000 {
			break
		}
	}

	return n.notifications.MarkSent(notificationID, resp.StatusCode, string(respBody))
}

// TestWebhook posts a fixed probe message, used by spec.md §6's
// POST /discord/test. Returns the response status and body regardless of
// outcome rather than claiming a notification slot, since this is an
// operator-triggered diagnostic, not a domain event.
func (n *Notifier) TestWebhook() (status int, body string, err error) {
	if strings.TrimSpace(n.webhookURL) == "" {
		return 0, notConfiguredMessage, nil
	}

	payload, err := json.Marshal(map[string]string{"content": "**Test Notification**\nWebhook is configured correctly."})
	if err != nil {
		return 0, "", err
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody := make([]byte, 0, 1024)
	buf := make([]byte, 1024)
	for {
		nRead, rerr := resp.Body.Read(buf)
		if nRead > 0 {
			respBody = append(respBody, buf[:nRead]...)
		}
		if rerr != nil {
			break
		}
	}
	return resp.StatusCode, string(respBody), nil
}

// formatPriceOrUnknown renders cents as "$1,234.56" (en-CA grouping, spec.md
// §4.10), or "unknown" when absent.
func formatPriceOrUnknown(cents *int64) string {
	if cents == nil {
		return "unknown"
	}
	return formatPriceEnCA(*cents)
}

func formatPriceEnCA(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	grouped := groupThousands(strconv.FormatInt(whole, 10))
	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped, frac)
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
		if n > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < n; i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < n {
			b.WriteByte(',')
		}
	}
	return b.String()
}
