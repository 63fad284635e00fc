package models

import (
	"fmt"
	"strconv"
)

// Fingerprint computes the admission key for a source document: a cheap
// additive digest over filename, declared size, last-modified timestamp
// and actual byte length. It is not content-derived and not collision
// resistant; ContentHash on the processed record is the
// correctness-critical identity.
func Fingerprint(doc *SourceDocument) string {
	seed := doc.Filename +
		strconv.FormatInt(doc.Size, 10) +
		strconv.FormatInt(doc.LastModified.UnixMilli(), 10) +
		strconv.Itoa(len(doc.Content))

	var sum uint64
	for i := 0; i < len(seed); i++ {
		sum = sum*31 + uint64(seed[i])
	}
	return fmt.Sprintf("%016x", sum)
}
