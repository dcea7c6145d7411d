// Package envelope provides the ASE1 envelope format and the Service that
// routes encrypt/decrypt calls to the configured providers.
//
// Wire format:
//
//	[4 bytes: 0x41 0x53 0x45 0x31]  "ASE1" magic
//	[varint32: header byte length]
//	[header bytes:
//	    varint32 version
//	    varint32 provider-ID length, provider-ID bytes
//	    varint32 nonce length, nonce bytes]
//	[ciphertext bytes]
package envelope

import (
	"fmt"
	"io"
)

var magic = [4]byte{0x41, 0x53, 0x45, 0x31} // "ASE1"

// Header is the decoded ASE1 envelope header.
type Header struct {
	Version    uint32
	ProviderID string
	Nonce      []byte
}

// HasMagic reports whether b starts with the ASE1 magic bytes.
func HasMagic(b []byte) bool {
	return len(b) >= 4 &&
		b[0] == magic[0] && b[1] == magic[1] && b[2] == magic[2] && b[3] == magic[3]
}

// WriteHeader encodes h as an ASE1 envelope prefix and writes it to w.
func WriteHeader(w io.Writer, h Header) error {
	body := make([]byte, 0, 5+5+len(h.ProviderID)+5+len(h.Nonce))
	body = appendVarint32(body, h.Version)
	body = appendVarint32(body, uint32(len(h.ProviderID)))
	body = append(body, h.ProviderID...)
	body = appendVarint32(body, uint32(len(h.Nonce)))
	body = append(body, h.Nonce...)

	buf := make([]byte, 0, 4+5+len(body))
	buf = append(buf, magic[:]...)
	buf = appendVarint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads the ASE1 magic + varint + header fields from r.
// Returns (header, true, nil) on success, (nil, false, nil) if magic is absent,
// or (nil, true, err) on a read error after the magic has been confirmed present.
func ReadHeader(r io.Reader) (*Header, bool, error) {
	var mgc [4]byte
	if _, err := io.ReadFull(r, mgc[:]); err != nil {
		return nil, false, nil // not enough bytes, treat as no magic
	}
	if mgc != magic {
		return nil, false, nil
	}
	bodyLen, err := readVarint32(r)
	if err != nil {
		return nil, true, fmt.Errorf("ase1: reading header length: %w", err)
	}
	// Guard against a crafted header advertising a huge length. Providers write
	// a version, a short provider ID, and a 12-byte AES-GCM IV, which is well
	// under 64 bytes.
	const maxHeaderLen = 4096
	if bodyLen > maxHeaderLen {
		return nil, true, fmt.Errorf("ase1: header length %d exceeds maximum %d", bodyLen, maxHeaderLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, true, fmt.Errorf("ase1: reading header bytes: %w", err)
	}

	version, body, err := takeVarint32(body)
	if err != nil {
		return nil, true, fmt.Errorf("ase1: decoding version: %w", err)
	}
	idBytes, body, err := takeBytes(body)
	if err != nil {
		return nil, true, fmt.Errorf("ase1: decoding provider id: %w", err)
	}
	nonce, _, err := takeBytes(body)
	if err != nil {
		return nil, true, fmt.Errorf("ase1: decoding nonce: %w", err)
	}
	return &Header{
		Version:    version,
		ProviderID: string(idBytes),
		Nonce:      nonce,
	}, true, nil
}

// ── varint32 helpers ──────────────────────────────────────────────────────────

func appendVarint32(b []byte, v uint32) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func readVarint32(r io.Reader) (uint32, error) {
	var v uint32
	var buf [1]byte
	for i := range 5 {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v |= uint32(buf[0]&0x7F) << (7 * uint(i))
		if buf[0]&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("ase1: varint32 overflow")
}

// takeVarint32 decodes a varint32 from the front of b and returns the rest.
func takeVarint32(b []byte) (uint32, []byte, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		if i >= len(b) {
			return 0, nil, io.ErrUnexpectedEOF
		}
		v |= uint32(b[i]&0x7F) << (7 * uint(i))
		if b[i]&0x80 == 0 {
			return v, b[i+1:], nil
		}
	}
	return 0, nil, fmt.Errorf("varint32 overflow")
}

// takeBytes decodes a varint-length-prefixed byte slice from the front of b.
func takeBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := takeVarint32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return rest[:n], rest[n:], nil
}
