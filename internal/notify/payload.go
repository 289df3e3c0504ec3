// Package notify はドメイン状態変化の通知ディスパッチを提供する。
package notify

import (
	"fmt"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
)

// Payload は全チャネル共通の通知内容を表す。
type Payload struct {
	Event          string    `json:"event"`
	Domain         string    `json:"domain"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	ExpiryDate     string    `json:"expiry_date,omitempty"`
	Registrar      string    `json:"registrar,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	AutoRegister   bool      `json:"auto_register"`
	Priority       int       `json:"priority"`
	Tags           []string  `json:"tags"`
	Message        string    `json:"message"`
}

// statusEmoji はステータスごとの通知メッセージ用絵文字。
var statusEmoji = map[model.DomainStatus]string{
	model.StatusAvailable:     "\U0001F7E2",
	model.StatusRegistered:    "\U0001F534",
	model.StatusExpiringSoon:  "\U0001F7E1",
	model.StatusGracePeriod:   "\U0001F7E0",
	model.StatusRedemption:    "\U0001F7E0",
	model.StatusPendingDelete: "\U0001F535",
	model.StatusUnknown:       "⚪",
	model.StatusError:         "⚪",
}

// statusLabel はステータスごとの人間向けメッセージ。
var statusLabel = map[model.DomainStatus]string{
	model.StatusAvailable:     "is now available!",
	model.StatusRegistered:    "is now registered",
	model.StatusExpiringSoon:  "is expiring soon",
	model.StatusGracePeriod:   "entered grace period",
	model.StatusRedemption:    "entered redemption period",
	model.StatusPendingDelete: "is pending deletion",
	model.StatusUnknown:       "status is unknown",
	model.StatusError:         "check returned an error",
}

// buildMessage はドメイン名と新ステータスから1行メッセージを組み立てる。
func buildMessage(domain string, newStatus model.DomainStatus) string {
	label, ok := statusLabel[newStatus]
	if !ok {
		label = fmt.Sprintf("status changed to %s", newStatus)
	}
	if emoji, ok := statusEmoji[newStatus]; ok {
		return fmt.Sprintf("%s %s %s", emoji, domain, label)
	}
	return fmt.Sprintf("%s %s", domain, label)
}

// BuildPayload はドメインと状態遷移から通知ペイロードを組み立てる。
func BuildPayload(domain *model.Domain, event string, newStatus, previousStatus model.DomainStatus) *Payload {
	payload := &Payload{
		Event:          event,
		Domain:         domain.Name,
		PreviousStatus: string(previousStatus),
		NewStatus:      string(newStatus),
		Registrar:      domain.Registrar,
		CheckedAt:      time.Now(),
		AutoRegister:   domain.AutoRegister,
		Priority:       domain.Priority,
		Tags:           domain.Tags,
		Message:        buildMessage(domain.Name, newStatus),
	}
	if payload.Tags == nil {
		payload.Tags = []string{}
	}
	if domain.ExpiryDate != nil {
		payload.ExpiryDate = domain.ExpiryDate.Format(time.RFC3339)
	}
	return payload
}
