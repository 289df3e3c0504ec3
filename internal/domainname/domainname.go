// Package domainname はドメイン名の正規化・検証・TLD抽出を提供する。
package domainname

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// RFC 1035に基づくドメイン名の形式（各ラベル63文字以内、TLDは英字2文字以上）。
var domainRegex = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// 2階層TLDとして扱う既知のサフィックス。
var knownSecondLevel = map[string]struct{}{
	"co.uk":  {},
	"com.au": {},
	"co.nz":  {},
	"com.br": {},
	"co.jp":  {},
	"org.uk": {},
	"net.au": {},
}

// Normalize はドメイン名を正規化する。
// 前後の空白と末尾のドットを除去して小文字化し、
// 国際化ドメイン名（IDN）はpunycode（ASCII）表記に変換する。
func Normalize(domain string) string {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if ascii, err := idna.Lookup.ToASCII(d); err == nil {
		return ascii
	}
	return d
}

// IsValid はドメイン名の形式が正しいかを検証する。全体で253文字以内。
func IsValid(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	return domainRegex.MatchString(domain)
}

// ExtractTLD はドメイン名からTLDを抽出する。
// co.ukやcom.auなどの既知の2階層TLDを考慮する。
// ドットを含まない入力には空文字列を返す。
func ExtractTLD(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return ""
	}
	lastTwo := strings.Join(parts[len(parts)-2:], ".")
	if len(parts) > 2 {
		if _, ok := knownSecondLevel[lastTwo]; ok {
			return lastTwo
		}
	}
	return parts[len(parts)-1]
}

// SLD はドメイン名の第2レベル部分（example.comのexample）を返す。
func SLD(domain string) string {
	name := strings.TrimSuffix(domain, "."+ExtractTLD(domain))
	parts := strings.Split(name, ".")
	return parts[len(parts)-1]
}

// ParseList は改行・カンマ区切りの入力を正規化済みドメイン名のリストに変換する。
// 形式の不正なエントリは黙って除外する。
func ParseList(input string) []string {
	var domains []string
	for _, raw := range regexp.MustCompile(`[\n,]+`).Split(input, -1) {
		d := Normalize(raw)
		if d != "" && IsValid(d) {
			domains = append(domains, d)
		}
	}
	return domains
}
