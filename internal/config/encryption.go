package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseEncryptionKey accepts a hex or base64 encoded AES key of 16, 24, or
// 32 bytes. Both base64 paddings are tried, since keys from openssl and from
// cloud consoles differ there.
func ParseEncryptionKey(raw string) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
	}
	for _, decode := range decoders {
		if b, err := decode(value); err == nil && isAESKeyLen(len(b)) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("key must be hex or base64 encoded 16/24/32-byte value")
}

// ParseEncryptionKeyList parses a comma-separated key list. The first entry
// encrypts new data; the rest stay for decrypting data written under
// rotated-out keys.
func ParseEncryptionKeyList(raw string) ([][]byte, error) {
	var keys [][]byte
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := ParseEncryptionKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func isAESKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}
