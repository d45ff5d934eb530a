// Package password はargon2idによるパスワードハッシュの生成と検証を提供する。
// ハッシュはPHC文字列フォーマット
// （$argon2id$v=19$m=...,t=...,p=...$salt$hash）で保存する。
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// Params はargon2idのコストパラメータ。
type Params struct {
	Memory      uint32 // KiB単位
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams は既定のコストパラメータを返す。
// 一般的なサーバーで1回のハッシュ計算が50〜200ms程度に収まるよう調整している。
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher はパスワードのハッシュ生成と検証を行う。
// 生成時に呼び出しごとのランダムソルトを埋め込むため、
// 同じパスワードでも毎回異なるハッシュ文字列になる。
type Hasher struct {
	params    Params
	dummyHash string
}

// NewHasher はHasherを生成する。
// 存在しないアカウントへのログイン試行でも同等のハッシュ計算を行えるよう、
// ダミー比較用のハッシュを事前に1件計算して保持する（タイミング攻撃による
// アカウント列挙への対策）。
func NewHasher(params Params) (*Hasher, error) {
	if params.Memory == 0 || params.Time == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid argon2 cost parameters: %+v", params)
	}
	if params.SaltLength < 16 || params.KeyLength < 16 {
		return nil, fmt.Errorf("argon2 salt and key length must be >= 16 bytes")
	}

	h := &Hasher{params: params}

	decoy := make([]byte, 32)
	if _, err := rand.Read(decoy); err != nil {
		return nil, fmt.Errorf("failed to generate decoy secret: %w", err)
	}
	dummy, err := h.Hash(base64.StdEncoding.EncodeToString(decoy))
	if err != nil {
		return nil, fmt.Errorf("failed to precompute dummy hash: %w", err)
	}
	h.dummyHash = dummy

	return h, nil
}

// Hash はパスワードをargon2idでハッシュ化し、PHC文字列を返す。
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードが保存済みハッシュと一致するかを検証する。
// 比較は一定時間比較で行う。ハッシュ文字列が不正な場合は
// エラーにせずfalseを返す。
func (h *Hasher) Verify(plaintext, encodedHash string) bool {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.key)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

// VerifyDummy は事前計算済みのダミーハッシュに対して検証を実行する。
// 結果は常にfalseだが、実在アカウントへの検証と同等のCPUコストを消費する。
func (h *Hasher) VerifyDummy(plaintext string) bool {
	return h.Verify(plaintext, h.dummyHash)
}

type parsedHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// parsePHC はPHC文字列を分解する。
func parsePHC(encodedHash string) (*parsedHash, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version")
	}

	var memory, timeCost uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &parallelism); err != nil {
		return nil, fmt.Errorf("invalid cost parameters: %w", err)
	}
	if memory == 0 || timeCost == 0 || parallelism == 0 {
		return nil, fmt.Errorf("invalid cost parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("invalid salt encoding")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("invalid key encoding")
	}

	return &parsedHash{
		memory:      memory,
		time:        timeCost,
		parallelism: parallelism,
		salt:        salt,
		key:         key,
	}, nil
}
