// Package s3url parses object-storage URLs of the form
// s3://bucket/prefix/ or gs://bucket/prefix/ and maps keys between
// source and destination prefixes.
package s3url

import (
	"fmt"
	"strings"
)

// URL identifies a bucket and an optional key prefix on one provider.
type URL struct {
	Scheme string
	Bucket string
	Prefix string
}

// Parse splits a storage URL into scheme, bucket and prefix. A non-empty
// prefix is normalized to end with "/" so key joining stays unambiguous.
func Parse(raw string) (URL, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || (scheme != "s3" && scheme != "gs") {
		return URL{}, fmt.Errorf("invalid storage URL %q: expected s3://bucket/prefix/ or gs://bucket/prefix/", raw)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URL{}, fmt.Errorf("invalid storage URL %q: missing bucket name", raw)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return URL{Scheme: scheme, Bucket: bucket, Prefix: prefix}, nil
}

func (u URL) String() string {
	return u.Scheme + "://" + u.Bucket + "/" + u.Prefix
}

// RelativeKey strips the prefix from a full object key, yielding the path
// used to match source and destination objects.
func RelativeKey(key, prefix string) string {
	if prefix != "" {
		key = strings.TrimPrefix(key, prefix)
	}
	return strings.TrimPrefix(key, "/")
}

// JoinKey maps a relative path onto a destination prefix.
func JoinKey(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return prefix + rel
}

// Extension returns the lowercased file extension of a key, or
// "no_extension" when the final path segment has none.
func Extension(key string) string {
	base := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		base = key[idx+1:]
	}
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return "no_extension"
	}
	return strings.ToLower(base[idx+1:])
}
