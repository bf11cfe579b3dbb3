// Package crypto 提供密码哈希与敏感信息脱敏
package crypto

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher 密码哈希器
type Hasher struct {
	cost int
}

// NewHasher 创建密码哈希器，cost 非法时使用默认值
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash 对密码进行哈希
func (h *Hasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify 验证密码
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MaskSecretKey 密钥脱敏，只保留前缀
// sk_test_abcdef123 -> sk_test_****
func MaskSecretKey(key string) string {
	if key == "" {
		return ""
	}
	if idx := strings.LastIndex(key, "_"); idx > 0 && idx < len(key)-1 {
		return key[:idx+1] + "****"
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

// RedactSecret 将文本中出现的密钥替换为脱敏形式
func RedactSecret(text, key string) string {
	if key == "" {
		return text
	}
	return strings.ReplaceAll(text, key, MaskSecretKey(key))
}

// MaskPhone 手机号脱敏，保留前三位与后四位
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return phone
	}
	return phone[:3] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-4:]
}

// MaskEmail 邮箱脱敏
func MaskEmail(email string) string {
	i := strings.IndexByte(email, '@')
	if i <= 2 {
		return email
	}
	return email[:2] + "***" + email[i:]
}
