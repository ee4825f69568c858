package swapcache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex encoded sha256 sum of an image payload.
func Digest(imgBytes []byte) string {
	sum := sha256.Sum256(imgBytes)
	return hex.EncodeToString(sum[:])
}

// NewFingerprint derives the cache key for a swap request from the two
// normalized images. The pair is ordered: swapping source and destination
// yields a different fingerprint.
func NewFingerprint(sourceImgBytes, destImgBytes []byte) string {
	return Digest(sourceImgBytes) + ":" + Digest(destImgBytes)
}
