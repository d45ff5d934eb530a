// Package security は入力値のサニタイズ処理を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameLength は表示名の最大文字数。
const maxNameLength = 100

// ProfileSanitizer はユーザー入力のプロフィール項目（表示名・パート名）を
// サニタイズする。HTMLタグを全て除去し、格納時のXSS持ち込みを防ぐ。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名からHTMLタグを除去し、前後の空白を落とす。
// 最大文字数を超える場合は文字（rune）単位で切り詰める。
// バイト単位で切ると日本語名のマルチバイト文字が途中で分断されるため。
func (s *ProfileSanitizer) SanitizeName(name string) string {
	cleaned := strings.TrimSpace(s.policy.Sanitize(name))
	if runes := []rune(cleaned); len(runes) > maxNameLength {
		cleaned = string(runes[:maxNameLength])
	}
	return cleaned
}
