// Package whois はRDAP未対応TLDに対するWHOISベースの可用性判定を提供する。
package whois

import (
	"strings"

	"github.com/likexian/whois"

	"github.com/laurilehto/namedrop/internal/model"
)

// 登録済みを示すパターン。可用パターンより先に評価する。
var takenPatterns = []string{
	"registrar:",
	"registrant:",
	"creation date:",
	"created:",
	"registry expiry date:",
	"expiration date:",
	"name server:",
	"nameserver:",
	"nserver:",
	"dnssec:",
	"registrar iana id:",
	"domain status:",
	"admin contact:",
	"tech contact:",
	"billing contact:",
}

// 未登録を示すパターン。
var availablePatterns = []string{
	"no match for",
	"not found",
	"no entries found",
	"domain not found",
	"no data found",
	"status: free",
	"status: available",
	"no object found",
	"object does not exist",
	"nothing found",
	"no information available",
	"is available for registration",
	"is free",
	"domain is available",
	"the queried object does not exist",
	"no such domain",
	"domain name has not been registered",
	"no matching record",
}

// lookupFunc はテストで差し替えるためのWHOIS照会関数。
var lookupFunc = whois.Whois

// Probe はWHOISレスポンスのパターンマッチでドメインの可用性を判定する。
// RDAPサーバーが存在しないTLDのフォールバックとして使う。
// 判定不能なレスポンスはregisteredとして扱う（保守的判定）。
// 照会そのものの失敗はerrorとして返し、デフォルト間隔で再試行させる。
type Probe struct{}

// NewProbe はProbeを生成する。
func NewProbe() *Probe {
	return &Probe{}
}

// Check は指定ドメインの可用性を判定する。
// 照会に成功した場合はavailableまたはregistered、失敗した場合はerrorを返す。
func (p *Probe) Check(domain string) model.DomainStatus {
	raw, err := lookupFunc(domain)
	if err != nil {
		return model.StatusError
	}
	return classify(raw)
}

// classify はWHOISレスポンステキストからステータスを判定する。
func classify(raw string) model.DomainStatus {
	text := strings.ToLower(raw)

	// 登録済みパターンを優先（誤検出が少ない）
	for _, pattern := range takenPatterns {
		if strings.Contains(text, pattern) {
			return model.StatusRegistered
		}
	}

	// プレミアム・予約ドメインは登録可能ではない
	if (strings.Contains(text, "premium") || strings.Contains(text, "platinum")) &&
		(strings.Contains(text, "purchase") || strings.Contains(text, "contact") ||
			strings.Contains(text, "offer") || strings.Contains(text, "reserved")) {
		return model.StatusRegistered
	}
	if strings.Contains(text, "this name is reserved") {
		return model.StatusRegistered
	}

	for _, pattern := range availablePatterns {
		if strings.Contains(text, pattern) {
			return model.StatusAvailable
		}
	}

	// 判定不能な場合は登録済み扱い
	return model.StatusRegistered
}
