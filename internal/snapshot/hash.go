package snapshot

import (
	"crypto/sha256"
	"io"
	"os"
)

// hashChunkSize bounds the read buffer so memory use is independent of
// file size.
const hashChunkSize = 64 * 1024

// HashFile computes the SHA-256 digest of the file's full byte content,
// streaming it in bounded chunks. An open or read failure means the
// file is currently unreadable (it may have been removed between
// listing and hashing); callers skip the file rather than aborting.
func HashFile(path string) (Digest, error) {
	var digest Digest

	f, err := os.Open(path)
	if err != nil {
		return digest, newError(OpHash, path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return digest, newError(OpHash, path, err)
	}

	copy(digest[:], h.Sum(nil))
	return digest, nil
}
