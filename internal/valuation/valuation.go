// Package valuation はドメイン名の簡易価値推定を提供する。
// 観測可能な特徴に基づくヒューリスティックであり、正式な査定ではない。
package valuation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/laurilehto/namedrop/internal/domainname"
)

// premiumTLDs はTLDごとの価値係数。未知のTLDは0.15として扱う。
var premiumTLDs = map[string]float64{
	"com":  1.0,
	"net":  0.6,
	"org":  0.5,
	"io":   0.7,
	"ai":   0.9,
	"co":   0.5,
	"dev":  0.6,
	"app":  0.5,
	"xyz":  0.2,
	"me":   0.3,
	"info": 0.2,
	"biz":  0.2,
}

var premiumKeywords = []string{
	"ai", "app", "auto", "bank", "bet", "buy", "car", "cash", "chat",
	"cloud", "code", "coin", "crypto", "data", "deal", "dev", "digital",
	"finance", "fire", "fit", "fly", "food", "free", "game", "go", "gold",
	"green", "health", "home", "host", "hub", "job", "lab", "link", "live",
	"loan", "mail", "map", "market", "media", "meta", "money", "net",
	"news", "next", "pay", "pet", "play", "pro", "rent", "sale", "save",
	"shop", "smart", "social", "solar", "sport", "star", "store", "stream",
	"tech", "trade", "travel", "trust", "vip", "vote", "wallet", "web", "win",
}

var (
	digitRegex      = regexp.MustCompile(`\d`)
	allLettersRegex = regexp.MustCompile(`^[a-zA-Z]+$`)
	allDigitsRegex  = regexp.MustCompile(`^\d+$`)
)

// Tier は推定価値の等級を表す。
type Tier string

const (
	TierPremium Tier = "premium"
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
	TierMinimal Tier = "minimal"
)

// Impact は評価要因の影響方向を表す。
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

// Factor は評価に影響した要因を表す。
type Factor struct {
	Name        string `json:"name"`
	Impact      Impact `json:"impact"`
	Description string `json:"description"`
}

// Result はドメインの価値推定結果を表す。
type Result struct {
	Score    int      `json:"score"` // 0〜100
	MinPrice int      `json:"min_price"`
	MaxPrice int      `json:"max_price"`
	Factors  []Factor `json:"factors"`
	Tier     Tier     `json:"tier"`
}

// Estimate はドメイン名の推定価値を算出する。
func Estimate(domain string) *Result {
	sld := strings.ToLower(domainname.SLD(domain))
	tld := domainname.ExtractTLD(domain)

	var factors []Factor
	score := 50

	// 1. 文字数（短いほど価値が高い）
	switch n := len(sld); {
	case n <= 2:
		score += 30
		factors = append(factors, Factor{"Ultra-short", ImpactPositive,
			fmt.Sprintf("%d characters — extremely rare and valuable", n)})
	case n <= 3:
		score += 25
		factors = append(factors, Factor{"Very short", ImpactPositive,
			fmt.Sprintf("%d characters — highly sought after", n)})
	case n <= 4:
		score += 18
		factors = append(factors, Factor{"Short", ImpactPositive,
			fmt.Sprintf("%d characters — premium length", n)})
	case n <= 6:
		score += 8
		factors = append(factors, Factor{"Good length", ImpactPositive,
			fmt.Sprintf("%d characters — easy to remember", n)})
	case n <= 10:
		factors = append(factors, Factor{"Average length", ImpactNeutral,
			fmt.Sprintf("%d characters", n)})
	case n <= 15:
		score -= 5
		factors = append(factors, Factor{"Long", ImpactNegative,
			fmt.Sprintf("%d characters — harder to brand", n)})
	default:
		score -= 15
		factors = append(factors, Factor{"Very long", ImpactNegative,
			fmt.Sprintf("%d characters — too long for most uses", n)})
	}

	// 2. TLDの価値
	tldMultiplier, known := premiumTLDs[tld]
	if !known {
		tldMultiplier = 0.15
	}
	switch {
	case tldMultiplier >= 0.9:
		score += 15
		factors = append(factors, Factor{fmt.Sprintf("Premium TLD (.%s)", tld),
			ImpactPositive, "Top-tier domain extension"})
	case tldMultiplier >= 0.5:
		score += 8
		factors = append(factors, Factor{fmt.Sprintf("Good TLD (.%s)", tld),
			ImpactPositive, "Well-known extension"})
	case tldMultiplier >= 0.2:
		score -= 3
		factors = append(factors, Factor{fmt.Sprintf("Standard TLD (.%s)", tld),
			ImpactNeutral, "Common but less premium"})
	default:
		score -= 10
		factors = append(factors, Factor{fmt.Sprintf("Niche TLD (.%s)", tld),
			ImpactNegative, "Less recognized extension"})
	}

	// 3. キーワードマッチ
	var matched []string
	exact := false
	for _, kw := range premiumKeywords {
		if sld == kw {
			exact = true
		}
		if sld == kw || strings.HasPrefix(sld, kw) || strings.HasSuffix(sld, kw) {
			matched = append(matched, kw)
		}
	}
	if len(sld) <= 6 && exact {
		score += 20
		factors = append(factors, Factor{"Exact keyword match", ImpactPositive,
			fmt.Sprintf("%q is a premium keyword", sld)})
	} else if len(matched) > 0 {
		score += 8
		factors = append(factors, Factor{"Contains keyword", ImpactPositive,
			"Contains: " + strings.Join(matched, ", ")})
	}

	// 4. 文字構成
	hasDigits := digitRegex.MatchString(sld)
	hasHyphens := strings.Contains(sld, "-")
	allLetters := allLettersRegex.MatchString(sld)
	allDigits := allDigitsRegex.MatchString(sld)

	if allLetters {
		score += 5
		factors = append(factors, Factor{"Letters only", ImpactPositive,
			"Clean, brandable format"})
	} else if allDigits && len(sld) <= 4 {
		score += 10
		factors = append(factors, Factor{"Numeric domain", ImpactPositive,
			"Short numeric domains are collectible"})
	}
	if hasHyphens {
		score -= 10
		factors = append(factors, Factor{"Contains hyphens", ImpactNegative,
			"Hyphens reduce value"})
	}
	if hasDigits && !allDigits {
		score -= 5
		factors = append(factors, Factor{"Mixed alphanumeric", ImpactNegative,
			"Less brandable than pure letters"})
	}

	// 5. 発音しやすさ（母音比率による簡易判定）
	if allLetters && len(sld) > 0 {
		vowels := 0
		for _, r := range sld {
			if strings.ContainsRune("aeiou", r) {
				vowels++
			}
		}
		ratio := float64(vowels) / float64(len(sld))
		if ratio >= 0.3 && ratio <= 0.5 {
			score += 5
			factors = append(factors, Factor{"Pronounceable", ImpactPositive,
				"Good vowel-consonant balance"})
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	// 価格レンジ: スコアの指数スケーリングにTLD係数を掛ける
	multiplier := math.Pow(10, float64(score)/25)
	minPrice := int(math.Round(5 * multiplier * tldMultiplier))
	maxPrice := int(math.Round(50 * multiplier * tldMultiplier))

	var tier Tier
	switch {
	case score >= 80:
		tier = TierPremium
	case score >= 65:
		tier = TierHigh
	case score >= 45:
		tier = TierMedium
	case score >= 25:
		tier = TierLow
	default:
		tier = TierMinimal
	}

	return &Result{
		Score:    score,
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Factors:  factors,
		Tier:     tier,
	}
}
