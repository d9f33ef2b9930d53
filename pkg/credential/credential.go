// Package credential 密码哈希与校验
package credential

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// ErrCorruptHash 存储的哈希无法解析（数据错误，不是密码错误）
var ErrCorruptHash = errors.New("credential: malformed password hash")

const argonPrefix = "$argon2id$"

// Params argon2id 参数，MemoryKiB 单位 KiB
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   uint32
}

var DefaultParams = Params{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   2,
	KeyLen:    32,
	SaltLen:   16,
}

type Store struct {
	p Params
}

// New 零值字段取 DefaultParams
func New(p Params) *Store {
	if p.Time == 0 {
		p.Time = DefaultParams.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = DefaultParams.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = DefaultParams.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultParams.KeyLen
	}
	if p.SaltLen == 0 {
		p.SaltLen = DefaultParams.SaltLen
	}
	return &Store{p: p}
}

func (s *Store) Params() Params { return s.p }

// Hash 输出 PHC 格式 argon2id，每次随机盐
func (s *Store) Hash(plaintext string) (string, error) {
	salt := make([]byte, s.p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credential: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, s.p.Time, s.p.MemoryKiB, s.p.Threads, s.p.KeyLen)
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argonPrefix, argon2.Version, s.p.MemoryKiB, s.p.Time, s.p.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify 兼容旧数据：bcrypt 与 werkzeug "pbkdf2:<alg>:<iter>$salt$hex"
func (s *Store) Verify(plaintext, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argonPrefix):
		return verifyArgon(plaintext, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return verifyBcrypt(plaintext, encoded)
	case strings.HasPrefix(encoded, "pbkdf2:"):
		return verifyPBKDF2(plaintext, encoded)
	default:
		return false, ErrCorruptHash
	}
}

// NeedsRehash 非 argon2id 或参数不同时需要重算
func (s *Store) NeedsRehash(encoded string) bool {
	a, err := parseArgon(encoded)
	if err != nil {
		return true
	}
	return a.time != s.p.Time || a.memory != s.p.MemoryKiB || a.threads != s.p.Threads ||
		uint32(len(a.key)) != s.p.KeyLen || uint32(len(a.salt)) != s.p.SaltLen
}

type argonHash struct {
	memory, time uint32
	threads      uint8
	salt, key    []byte
}

func parseArgon(encoded string) (*argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrCorruptHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, ErrCorruptHash
	}
	var a argonHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &a.memory, &a.time, &a.threads); err != nil {
		return nil, ErrCorruptHash
	}
	if a.memory == 0 || a.time == 0 || a.threads == 0 {
		return nil, ErrCorruptHash
	}
	var err error
	b64 := base64.RawStdEncoding
	if a.salt, err = b64.DecodeString(parts[4]); err != nil || len(a.salt) == 0 {
		return nil, ErrCorruptHash
	}
	if a.key, err = b64.DecodeString(parts[5]); err != nil || len(a.key) == 0 {
		return nil, ErrCorruptHash
	}
	return &a, nil
}

func verifyArgon(plaintext, encoded string) (bool, error) {
	a, err := parseArgon(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plaintext), a.salt, a.time, a.memory, a.threads, uint32(len(a.key)))
	return subtle.ConstantTimeCompare(got, a.key) == 1, nil
}

func verifyBcrypt(plaintext, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCorruptHash, err)
	}
}

var pbkdf2Digests = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

func verifyPBKDF2(plaintext, encoded string) (bool, error) {
	method, rest, ok := strings.Cut(encoded, "$")
	if !ok {
		return false, ErrCorruptHash
	}
	salt, hexKey, ok := strings.Cut(rest, "$")
	if !ok || salt == "" {
		return false, ErrCorruptHash
	}
	fields := strings.Split(method, ":")
	if len(fields) != 3 {
		return false, ErrCorruptHash
	}
	digest, ok := pbkdf2Digests[fields[1]]
	if !ok {
		return false, ErrCorruptHash
	}
	iter, err := strconv.Atoi(fields[2])
	if err != nil || iter <= 0 {
		return false, ErrCorruptHash
	}
	want, err := hex.DecodeString(hexKey)
	if err != nil || len(want) == 0 {
		return false, ErrCorruptHash
	}
	got := pbkdf2.Key([]byte(plaintext), []byte(salt), iter, len(want), digest)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
