package media

import (
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_ConcatPreservesOrder(t *testing.T) {
	parts := []Blob{
		NewBlob("video/webm", []byte("ab")),
		NewBlob("video/webm", []byte("cde")),
		NewBlob("video/webm"),
	}
	b := ConcatBlobs("video/mp4", parts)

	assert.Equal(t, "video/mp4", b.Type())
	assert.Equal(t, 5, b.Size())
	assert.Equal(t, []byte("abcde"), b.Bytes())

	data, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(data))
}

func TestBlob_Immutable(t *testing.T) {
	src := []byte("hello")
	b := NewBlob("text/plain", src)
	src[0] = 'j'
	out := b.Bytes()
	out[1] = 'a'
	assert.Equal(t, "hello", string(b.Bytes()))
}

func TestObjectURLs_Lifecycle(t *testing.T) {
	urls := NewObjectURLs()
	blob := NewBlob("video/webm", []byte{1, 2, 3})

	u := urls.Create(blob)
	assert.True(t, strings.HasPrefix(u, "blob:"))
	assert.Equal(t, 1, urls.Len())

	got, ok := urls.Resolve(u)
	require.True(t, ok)
	assert.Equal(t, 3, got.Size())

	_, ok = urls.Resolve(strings.TrimPrefix(u, "blob:"))
	assert.True(t, ok, "bare handle resolves")

	assert.NotEqual(t, u, urls.Create(blob), "handles are unique")

	urls.Revoke(u)
	urls.Revoke(u)
	_, ok = urls.Resolve(u)
	assert.False(t, ok)
	assert.Equal(t, 1, urls.Len())
}

func TestObjectURLs_Concurrent(t *testing.T) {
	urls := NewObjectURLs()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				u := urls.Create(NewBlob("x/y", []byte("z")))
				urls.Resolve(u)
				urls.Revoke(u)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, urls.Len())
}
