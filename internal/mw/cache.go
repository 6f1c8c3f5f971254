package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// generationKey marks the current cache contents. Flush removes it, so a
// response rendered before a flush can tell that it is stale.
const generationKey = "\x00generation"

func currentGeneration(store *cache.Cache) any {
	if g, ok := store.Get(generationKey); ok {
		return g
	}
	g := new(byte)
	if err := store.Add(generationKey, g, cache.NoExpiration); err != nil {
		if cur, ok := store.Get(generationKey); ok {
			return cur
		}
	}
	return g
}

func sameGeneration(store *cache.Cache, gen any) bool {
	cur, ok := store.Get(generationKey)
	return ok && cur == gen
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache is a middleware for in-memory caching of GET requests. Entries are
// keyed by request URI, so it must only wrap responses that do not depend on
// the caller. Flush the store whenever the underlying data changes.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if resp, found := store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		gen := currentGeneration(store)
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw
		c.Writer.Header().Set("X-Cache", "MISS")

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 && sameGeneration(store, gen) {
			headers := blw.Header().Clone()
			headers.Del("X-Cache")
			headers.Del(RequestIDHeader)
			store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: headers,
				body:    blw.body.Bytes(),
			}, duration)
			// A flush may have landed between the check and the Set.
			if !sameGeneration(store, gen) {
				store.Delete(key)
			}
		}
	}
}
