package rdap

import (
	"strings"
	"time"

	"github.com/laurilehto/namedrop/internal/model"
)

// rdapEvent はRDAPレスポンスのイベント（登録・更新・満了など）を表す。
type rdapEvent struct {
	EventAction string `json:"eventAction"`
	EventDate   string `json:"eventDate"`
}

// rdapEntity はRDAPレスポンスのエンティティ（レジストラなど）を表す。
type rdapEntity struct {
	Roles      []string `json:"roles"`
	VCardArray []any    `json:"vcardArray"`
	Handle     string   `json:"handle"`
}

// rdapResponse はRDAPドメインクエリのレスポンスボディを表す。
type rdapResponse struct {
	ObjectClassName string       `json:"objectClassName"`
	LDHName         string       `json:"ldhName"`
	Status          []string     `json:"status"`
	Events          []rdapEvent  `json:"events"`
	Entities        []rdapEntity `json:"entities"`
}

// mapStatus はRDAPレスポンスをドメインステータスに変換する。
// 判定の優先順位:
//  1. HTTP 404 → available
//  2. レスポンスなし → error
//  3. EPPステータスに"redemption"を含む → redemption
//  4. EPPステータスに"pending delete"を含む → pending_delete
//  5. 満了日超過 → grace_period
//  6. 満了日まで閾値日数以内 → expiring_soon
//  7. それ以外 → registered
func mapStatus(response *rdapResponse, httpStatus int, thresholdDays int, now time.Time) model.DomainStatus {
	if httpStatus == 404 {
		return model.StatusAvailable
	}
	if response == nil {
		return model.StatusError
	}

	for _, s := range response.Status {
		if strings.Contains(strings.ToLower(s), "redemption") {
			return model.StatusRedemption
		}
	}
	for _, s := range response.Status {
		if strings.Contains(strings.ToLower(s), "pending delete") {
			return model.StatusPendingDelete
		}
	}

	if expiry := response.expiryDate(); expiry != nil {
		daysUntilExpiry := int(expiry.Sub(now).Hours() / 24)
		if expiry.Before(now) {
			return model.StatusGracePeriod
		}
		if daysUntilExpiry <= thresholdDays {
			return model.StatusExpiringSoon
		}
	}

	return model.StatusRegistered
}

// expiryDate はexpirationイベントから満了日時を取り出す。
// イベントがない、または日時が解釈できない場合はnilを返す。
func (r *rdapResponse) expiryDate() *time.Time {
	for _, event := range r.Events {
		if event.EventAction != "expiration" {
			continue
		}
		t, err := time.Parse(time.RFC3339, event.EventDate)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}

// registrarName はregistrarロールを持つエンティティからレジストラ名を取り出す。
// vCardのfnフィールドを優先し、なければhandleを使う。見つからない場合は空文字列。
func (r *rdapResponse) registrarName() string {
	for _, entity := range r.Entities {
		if !containsString(entity.Roles, "registrar") {
			continue
		}
		// vcardArrayは ["vcard", [["fn", {}, "text", "Example Registrar"], ...]] の形
		if len(entity.VCardArray) >= 2 {
			if fields, ok := entity.VCardArray[1].([]any); ok {
				for _, f := range fields {
					field, ok := f.([]any)
					if !ok || len(field) < 4 {
						continue
					}
					if name, ok := field[0].(string); ok && name == "fn" {
						if value, ok := field[3].(string); ok {
							return value
						}
					}
				}
			}
		}
		if entity.Handle != "" {
			return entity.Handle
		}
	}
	return ""
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

// CheckIntervalMinutes はステータスに応じた次回チェックまでの分数を返す。
// 解放が近いステータスほど短い間隔で監視する。
func CheckIntervalMinutes(status model.DomainStatus) int {
	switch status {
	case model.StatusUnknown:
		return 1
	case model.StatusPendingDelete:
		return 5
	case model.StatusGracePeriod, model.StatusRedemption:
		return 15
	case model.StatusExpiringSoon:
		return 30
	default:
		// registered / available / error
		return 60
	}
}
