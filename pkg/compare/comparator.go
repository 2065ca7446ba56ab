// Package compare decides whether a source object needs copying to the
// destination. Decisions are derived purely from the two descriptors;
// comparison never performs I/O and never fails.
package compare

import (
	"strings"

	"buckethop/pkg/models"
)

// Decide evaluates the copy rules in order: destination absent, size
// mismatch, fingerprint mismatch, newer source, identical. Missing
// metadata degrades to the next rule rather than erroring.
func Decide(src models.ObjectDescriptor, dst *models.ObjectDescriptor) models.CopyDecision {
	if dst == nil {
		return models.CopyDecision{Action: models.ActionCopy, Reason: models.ReasonNewObject}
	}

	if src.Size != dst.Size {
		return models.CopyDecision{Action: models.ActionCopy, Reason: models.ReasonSizeMismatch}
	}

	srcFP := normalizeFingerprint(src.ETag)
	dstFP := normalizeFingerprint(dst.ETag)
	if usableFingerprint(srcFP) && usableFingerprint(dstFP) {
		if srcFP != dstFP {
			return models.CopyDecision{Action: models.ActionCopy, Reason: models.ReasonFingerprintMismatch}
		}
		return models.CopyDecision{Action: models.ActionSkip, Reason: models.ReasonIdentical}
	}

	if !dst.LastModified.IsZero() && src.LastModified.After(dst.LastModified) {
		return models.CopyDecision{Action: models.ActionCopy, Reason: models.ReasonNewerSource}
	}

	return models.CopyDecision{Action: models.ActionSkip, Reason: models.ReasonIdentical}
}

func normalizeFingerprint(etag string) string {
	return strings.Trim(etag, `"`)
}

// usableFingerprint reports whether an ETag can settle equality across
// accounts. Multipart ETags ("md5-N") depend on the uploader's part size,
// so two byte-identical objects can legitimately carry different ones;
// those fall through to the last-modified rule.
func usableFingerprint(etag string) bool {
	return etag != "" && !strings.Contains(etag, "-")
}
