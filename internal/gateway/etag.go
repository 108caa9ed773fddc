package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeETag returns the strong etag of a serialized body.
func ComputeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// parseETags splits an If-Match / If-None-Match value; weak prefixes are dropped.
func parseETags(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		tag = strings.TrimPrefix(tag, "W/")
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// matchETag reports whether header names etag. "*" matches any existing
// version; when no version is known only "*" matches.
func matchETag(header, etag string, known bool) bool {
	for _, tag := range parseETags(header) {
		if tag == "*" {
			return true
		}
		if known && tag == etag {
			return true
		}
	}
	return false
}

// resourceKey normalizes a request path into an etag store key.
func resourceKey(path string) string {
	if !strings.HasSuffix(path, "/") {
		return path + "/"
	}
	return path
}
