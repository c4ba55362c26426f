package media

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Blob is an immutable, typed byte sequence (like the browser's Blob).
type Blob struct {
	typ  string
	data []byte
}

// NewBlob copies parts into a single blob of the given MIME type.
func NewBlob(typ string, parts ...[]byte) Blob {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p...)
	}
	return Blob{typ: typ, data: data}
}

// ConcatBlobs joins blobs in order into one blob of the given type.
func ConcatBlobs(typ string, blobs []Blob) Blob {
	parts := make([][]byte, len(blobs))
	for i, b := range blobs {
		parts[i] = b.data
	}
	return NewBlob(typ, parts...)
}

// Type returns the blob's MIME type.
func (b Blob) Type() string { return b.typ }

// Size returns the length in bytes.
func (b Blob) Size() int { return len(b.data) }

// Bytes returns a copy of the contents.
func (b Blob) Bytes() []byte { return bytes.Clone(b.data) }

// Reader returns a reader over the contents.
func (b Blob) Reader() io.ReadSeeker { return bytes.NewReader(b.data) }

// objectURLScheme prefixes every URL handed out by ObjectURLs.
const objectURLScheme = "blob:"

// ObjectURLs maps opaque "blob:<uuid>" handles to blobs, the way
// URL.createObjectURL does. The view layer resolves handles to serve them.
type ObjectURLs struct {
	blobs map[string]Blob
	mu    sync.RWMutex
}

// NewObjectURLs creates an empty registry.
func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{blobs: make(map[string]Blob)}
}

// Create registers b and returns its handle.
func (u *ObjectURLs) Create(b Blob) string {
	url := objectURLScheme + uuid.NewString()
	u.mu.Lock()
	u.blobs[url] = b
	u.mu.Unlock()
	return url
}

// Resolve returns the blob behind a handle. The "blob:" prefix is optional.
func (u *ObjectURLs) Resolve(url string) (Blob, bool) {
	if !strings.HasPrefix(url, objectURLScheme) {
		url = objectURLScheme + url
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	b, ok := u.blobs[url]
	return b, ok
}

// Revoke releases a handle. Revoking an unknown handle is a no-op.
func (u *ObjectURLs) Revoke(url string) {
	u.mu.Lock()
	delete(u.blobs, url)
	u.mu.Unlock()
}

// Len returns the number of live handles.
func (u *ObjectURLs) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.blobs)
}
