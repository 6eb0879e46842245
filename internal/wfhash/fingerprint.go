package wfhash

import (
	"encoding/hex"
	"io"
	"sort"

	"weaveforge/internal/core"
)

// InputFingerprint implements the fingerprint formula from the data model:
//
//	input_hash = H(target_id || sorted(dep_output_hashes) || sorted(source_fingerprints) || canonical(metadata))
//
// sourceFingerprints must already be computed for every path in
// target.Sources — callers pair core.InputResolver's resolved paths with a
// SourceCache (which dispatches to HashFile or MetadataFingerprint depending
// on whether the file changed) rather than calling HashFile directly here.
// depOutputHashes are the content hashes of the target's already-built
// dependencies' outputs.
func InputFingerprint(target core.Target, depOutputHashes, sourceFingerprints []string, metadata map[string]string) string {
	h := newDigest()
	io.WriteString(h, target.ID.String())

	deps := append([]string(nil), depOutputHashes...)
	sort.Strings(deps)
	for _, d := range deps {
		writeSize(h, int64(len(d)))
		io.WriteString(h, d)
	}

	srcs := append([]string(nil), sourceFingerprints...)
	sort.Strings(srcs)
	for _, s := range srcs {
		writeSize(h, int64(len(s)))
		io.WriteString(h, s)
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(h, k)
		io.WriteString(h, "=")
		io.WriteString(h, metadata[k])
		io.WriteString(h, "\x00")
	}

	return hex.EncodeToString(h.Sum(nil))
}
