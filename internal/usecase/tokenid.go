package usecase

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// Obfuscator deterministically scrambles the raw "{user}-{seq}-{rand}" string
// so the stored id does not expose its parts. It is not encryption.
type Obfuscator interface {
	Obfuscate(raw string) string
}

// DigestObfuscator hex-encodes the SHA-256 of the raw id.
type DigestObfuscator struct{}

func (DigestObfuscator) Obfuscate(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyedObfuscator hex-encodes an HMAC-SHA256 of the raw id under a server secret.
type KeyedObfuscator struct {
	key []byte
}

func NewKeyedObfuscator(key []byte) *KeyedObfuscator {
	return &KeyedObfuscator{key: key}
}

func (o *KeyedObfuscator) Obfuscate(raw string) string {
	mac := hmac.New(sha256.New, o.key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// TokenIDGenerator builds token ids from the user id, a process-unique
// sequence value and a random 64-bit value.
type TokenIDGenerator struct {
	node       *snowflake.Node
	obfuscator Obfuscator
	random     io.Reader
}

// NewTokenIDGenerator returns a generator whose sequence is unique for nodeID.
// Two processes sharing a node id may produce the same sequence values.
func NewTokenIDGenerator(nodeID int64, obfuscator Obfuscator) (*TokenIDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	if obfuscator == nil {
		obfuscator = DigestObfuscator{}
	}
	return &TokenIDGenerator{node: node, obfuscator: obfuscator, random: rand.Reader}, nil
}

func (g *TokenIDGenerator) Next(userID int64) (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(g.random, b[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	r := int64(binary.BigEndian.Uint64(b[:]))

	raw := strconv.FormatInt(userID, 10) + "-" +
		strconv.FormatInt(g.node.Generate().Int64(), 10) + "-" +
		strconv.FormatInt(r, 10)
	return g.obfuscator.Obfuscate(raw), nil
}
