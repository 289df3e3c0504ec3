// Package crypto はレジストラ資格情報の暗号化を提供する。
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/laurilehto/namedrop/internal/model"
)

const (
	keyLength   = 32 // AES-256
	nonceLength = 12
	tagLength   = 16

	// 鍵導出のソルト。変更すると既存の暗号化トークンが復号できなくなる。
	kdfSalt = "namedrop-registrar-keys"
)

// Cipher はAES-256-GCMによる資格情報の暗号化・復号を提供する。
// 鍵はマスターシークレットからscryptで導出し、生成時に1回だけ計算する。
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher はマスターシークレットからCipherを生成する。
// シークレットが空、またはプレースホルダー値（"changeme"）の場合はエラーを返す。
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" || secret == "changeme" {
		return nil, fmt.Errorf("AUTH_SECRET must be set to a secure value (not 'changeme') for credential encryption")
	}

	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), 32768, 8, 1, keyLength)
	if err != nil {
		return nil, fmt.Errorf("鍵導出に失敗しました: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("暗号の初期化に失敗しました: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCMの初期化に失敗しました: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt は平文を暗号化し、base64(nonce):base64(tag):base64(ciphertext)
// 形式のトークンを返す。
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonceの生成に失敗しました: %w", err)
	}

	// Sealの出力は ciphertext || tag（末尾16バイトが認証タグ）
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt はEncryptが生成したトークンを復号する。
// トークンの構造が不正な場合、または認証タグの検証に失敗した場合はエラーを返す。
func (c *Cipher) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", model.NewInvalidCipherTokenError()
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", model.NewInvalidCipherTokenError()
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", model.NewInvalidCipherTokenError()
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", model.NewInvalidCipherTokenError()
	}
	if len(nonce) != nonceLength || len(tag) != tagLength {
		return "", model.NewInvalidCipherTokenError()
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("復号に失敗しました: %w", err)
	}

	return string(plaintext), nil
}
