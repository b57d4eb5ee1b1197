package images

import (
	"crypto/rand"
	"strings"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomName returns a random alphanumeric string of the given length.
// Length zero yields the empty string (no folder segment).
func randomName(length int) string {
	if length == 0 {
		return ""
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = nameAlphabet[int(b)%len(nameAlphabet)]
	}
	return string(buf)
}

// fileExtension extracts the lowercase extension from a client-supplied
// filename, defaulting to "bin".
func fileExtension(filename string) string {
	if filename == "" {
		return "bin"
	}
	parts := strings.Split(strings.ToLower(filename), ".")
	if len(parts) < 2 {
		return "bin"
	}
	return parts[len(parts)-1]
}

// publicID joins folder and filename into the composite key used both
// locally and at the backing service.
func publicID(folder, filename string) string {
	if folder == "" {
		return filename
	}
	return folder + "/" + filename
}
