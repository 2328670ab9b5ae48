package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// DomainRevision separates revision hashes from any other hash of the same bytes.
// The version suffix leaves room for a future algorithm change.
const DomainRevision = "rxdoc/revision/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RevisionHash computes the content hash of a record.
// Equal records always hash equally regardless of key insertion order.
func RevisionHash(data Object) (string, error) {
	canonical, err := MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("revision hash: %w", err)
	}
	return hashWithDomain(DomainRevision, canonical), nil
}

// NextRevision returns the revision that follows prev for the given data.
// Revisions have the form "<height>-<hash>"; an empty prev yields height 1.
// Removal tombstones pass deleted=true so the hash differs from a plain write
// of the same data.
func NextRevision(prev string, data Object, deleted bool) (string, error) {
	height := int64(0)
	if prev != "" {
		h, _, err := ParseRevision(prev)
		if err != nil {
			return "", err
		}
		height = h
	}

	hashed := data
	if deleted {
		hashed = data.Clone()
		hashed["_deleted"] = Bool(true)
	}
	sum, err := RevisionHash(hashed)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(height+1, 10) + "-" + sum, nil
}

// ParseRevision splits a revision into height and hash.
func ParseRevision(rev string) (int64, string, error) {
	heightStr, sum, ok := strings.Cut(rev, "-")
	if !ok || sum == "" {
		return 0, "", fmt.Errorf("malformed revision %q", rev)
	}
	height, err := strconv.ParseInt(heightStr, 10, 64)
	if err != nil || height < 1 {
		return 0, "", fmt.Errorf("malformed revision height %q", rev)
	}
	return height, sum, nil
}

// MustRevisionHash is like RevisionHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRevisionHash(data Object) string {
	sum, err := RevisionHash(data)
	if err != nil {
		panic(err)
	}
	return sum
}
