package nextrush

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/andybalholm/brotli"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/gzip"
)

// StaticOptions configures one `Static` mount point, matching spec section
// 4.4's per-mount option table.
type StaticOptions struct {
	Index        []string
	SPA          string // fallback file served for unmatched paths, e.g. "index.html"; empty disables SPA mode
	Dotfiles     string // "allow", "deny", or "ignore" (default)
	MaxFileSize  int64  // files larger than this bypass the cache and stream directly
	MaxCacheSize int64  // total bytes the in-memory cache may hold
	MaxAge       int    // Cache-Control max-age seconds; 0 disables Cache-Control
	Immutable    bool
	AcceptRanges bool
	Gzip         bool
	Brotli       bool
}

// DefaultStaticOptions returns the options a new `Static` mount starts
// with.
func DefaultStaticOptions() StaticOptions {
	return StaticOptions{
		Index:        []string{"index.html"},
		Dotfiles:     "ignore",
		MaxFileSize:  5 << 20,
		MaxCacheSize: 64 << 20,
		AcceptRanges: true,
		Gzip:         true,
		Brotli:       true,
	}
}

// staticMount is one mounted static directory. Grounded on teacher
// coffer.go's `coffer`/`asset` split: a metadata map plus a content cache,
// invalidated by an fsnotify watcher. The content cache itself is
// `fastcache.Cache`, exactly as coffer.go uses it, keyed by
// "prefix|relPath|encoding" (see `cacheKey`); `xxhash` is used only in
// `buildETag`; and brotli/klauspost-gzip extend coffer.go's gzip-only precompression to
// match spec section 4.4's "gzip, brotli, or both".
type staticMount struct {
	app    *App
	prefix string
	root   string
	opts   StaticOptions

	content *fastcache.Cache

	mu       sync.Mutex
	meta     map[string]*assetMeta
	sizeUsed int64

	watcher    *fsnotify.Watcher
	watchedDir map[string]bool
}

type assetMeta struct {
	relPath      string
	modTime      time.Time
	size         int64
	etag         string
	contentType  string
	compressible bool
	hasGzip      bool
	hasBrotli    bool
	cached       bool
}

func newStaticMount(app *App, prefix, root string, opts StaticOptions) *staticMount {
	m := &staticMount{
		app:        app,
		prefix:     prefix,
		root:       filepath.Clean(root),
		opts:       opts,
		content:    fastcache.New(int(maxInt64(opts.MaxCacheSize, 1<<20))),
		meta:       make(map[string]*assetMeta),
		watchedDir: make(map[string]bool),
	}

	if w, err := fsnotify.NewWatcher(); err == nil {
		m.watcher = w
		go m.watchLoop()
	} else if app.Logger != nil {
		app.Logger.Warnf("static: fsnotify unavailable for %s: %v", root, err)
	}

	return m
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (m *staticMount) watchLoop() {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
				m.invalidate(ev.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if m.app.Logger != nil {
				m.app.Logger.Warnf("static: watcher error for %s: %v", m.root, err)
			}
		}
	}
}

// invalidate drops the cached entry (if any) whose on-disk path is abs.
func (m *staticMount) invalidate(abs string) {
	rel, err := filepath.Rel(m.root, abs)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	m.mu.Lock()
	defer m.mu.Unlock()

	if meta, ok := m.meta[rel]; ok {
		m.content.Del(m.cacheKey(rel, ""))
		if meta.hasGzip {
			m.content.Del(m.cacheKey(rel, "gzip"))
		}
		if meta.hasBrotli {
			m.content.Del(m.cacheKey(rel, "br"))
		}
		delete(m.meta, rel)
	}
}

func (m *staticMount) cacheKey(rel, encoding string) []byte {
	return []byte(m.prefix + "|" + rel + "|" + encoding)
}

func (m *staticMount) watch(dir string) {
	if m.watcher == nil {
		return
	}

	m.mu.Lock()
	already := m.watchedDir[dir]
	if !already {
		m.watchedDir[dir] = true
	}
	m.mu.Unlock()

	if !already {
		_ = m.watcher.Add(dir)
	}
}

func (m *staticMount) close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// serve handles one request under this mount, implementing spec section
// 4.4: path-safe resolution, dotfile policy, index/SPA fallback, in-memory
// cache with compression negotiation, conditional GET, and Range via
// `http.ServeContent`.
func (m *staticMount) serve(c *Context) error {
	rest := c.Params["*"]
	rest = strings.TrimPrefix(rest, "/")

	rel, ok := m.resolve(rest)
	if !ok {
		return ErrNotFound("")
	}

	if m.isDotfile(rel) {
		switch m.opts.Dotfiles {
		case "allow":
		case "deny":
			return ErrForbidden("")
		default:
			return ErrNotFound("")
		}
	}

	abs := filepath.Join(m.root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err == nil && info.IsDir() {
		found := false
		for _, idx := range m.opts.Index {
			candidate := strings.TrimSuffix(rel, "/")
			if candidate != "" {
				candidate += "/"
			}
			candidate += idx

			if ci, cerr := os.Stat(filepath.Join(m.root, filepath.FromSlash(candidate))); cerr == nil && !ci.IsDir() {
				rel, abs, info, found = candidate, filepath.Join(m.root, filepath.FromSlash(candidate)), ci, true
				break
			}
		}
		if !found {
			return m.notFoundOrSPA(c)
		}
	} else if err != nil {
		return m.notFoundOrSPA(c)
	}

	return m.serveFile(c, rel, abs, info)
}

// resolve joins rest onto the mount root and rejects any result that
// escapes root after cleaning, the path-traversal guard spec section 4.4
// requires ("never 403, [404] to avoid leaking layout" -- handled by the
// caller mapping this false into a 404-producing caller path; here it
// returns ok=false and the caller chooses 403 deliberately only for the
// dotfile case, keeping traversal itself indistinguishable from a miss).
func (m *staticMount) resolve(rest string) (string, bool) {
	cleaned := filepath.ToSlash(filepath.Clean("/" + rest))
	cleaned = strings.TrimPrefix(cleaned, "/")

	abs := filepath.Join(m.root, filepath.FromSlash(cleaned))
	if abs != m.root && !strings.HasPrefix(abs, m.root+string(filepath.Separator)) {
		return "", false
	}

	return cleaned, true
}

func (m *staticMount) isDotfile(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "" {
			return true
		}
	}
	return false
}

func (m *staticMount) notFoundOrSPA(c *Context) error {
	if m.opts.SPA == "" {
		return ErrNotFound("")
	}

	abs := filepath.Join(m.root, m.opts.SPA)
	info, err := os.Stat(abs)
	if err != nil {
		return ErrNotFound("")
	}

	return m.serveFile(c, m.opts.SPA, abs, info)
}

func (m *staticMount) serveFile(c *Context, rel, abs string, info os.FileInfo) error {
	if info.Size() > m.opts.MaxFileSize {
		return m.streamLarge(c, rel, abs, info)
	}

	meta, content, err := m.loadCached(rel, abs, info)
	if err != nil {
		return ErrInternal(err)
	}

	m.setCommonHeaders(c, meta)

	encoding, body := m.negotiate(c, meta, content)
	if encoding != "" {
		c.Response.Header.Set("Content-Encoding", encoding)
		c.Response.Header.Add("Vary", "Accept-Encoding")
	}

	name := filepath.Base(rel)
	http.ServeContent(c.Response.HTTPResponseWriter(), c.Request.Raw, name, meta.modTime, bytes.NewReader(body))
	c.Response.Written = true
	return nil
}

func (m *staticMount) streamLarge(c *Context, rel, abs string, info os.FileInfo) error {
	f, err := os.Open(abs)
	if err != nil {
		return ErrNotFound("")
	}
	c.Response.Defer(func() { f.Close() })

	contentType := mimeType(rel)
	etag := buildETag(info.ModTime(), info.Size())

	c.Response.Header.Set("Content-Type", contentType)
	c.Response.Header.Set("ETag", etag)
	c.Response.Header.Set("X-Content-Type-Options", "nosniff")
	if m.opts.AcceptRanges {
		c.Response.Header.Set("Accept-Ranges", "bytes")
	}
	m.setCacheControl(c)

	http.ServeContent(c.Response.HTTPResponseWriter(), c.Request.Raw, filepath.Base(rel), info.ModTime(), f)
	c.Response.Written = true
	return nil
}

func (m *staticMount) setCommonHeaders(c *Context, meta *assetMeta) {
	c.Response.Header.Set("Content-Type", meta.contentType)
	c.Response.Header.Set("ETag", meta.etag)
	c.Response.Header.Set("X-Content-Type-Options", "nosniff")
	if m.opts.AcceptRanges {
		c.Response.Header.Set("Accept-Ranges", "bytes")
	}
	m.setCacheControl(c)
}

func (m *staticMount) setCacheControl(c *Context) {
	if m.opts.MaxAge <= 0 {
		return
	}

	cc := fmt.Sprintf("public, max-age=%d", m.opts.MaxAge)
	if m.opts.Immutable {
		cc += ", immutable"
	}
	c.Response.Header.Set("Cache-Control", cc)
}

// negotiate picks the best available representation: brotli over gzip
// over identity, per spec section 4.4's stated preference order.
func (m *staticMount) negotiate(c *Context, meta *assetMeta, plain []byte) (string, []byte) {
	if !meta.compressible {
		return "", plain
	}

	if meta.hasBrotli && c.Response.acceptsEncoding("br") {
		if b, ok := m.loadVariant(meta.relPath, "br"); ok {
			return "br", b
		}
	}

	if meta.hasGzip && c.Response.acceptsEncoding("gzip") {
		if b, ok := m.loadVariant(meta.relPath, "gzip"); ok {
			return "gzip", b
		}
	}

	return "", plain
}

func (m *staticMount) loadVariant(rel, encoding string) ([]byte, bool) {
	buf := m.content.Get(nil, m.cacheKey(rel, encoding))
	if buf == nil {
		return nil, false
	}
	return buf, true
}

// loadCached returns the metadata and plain-text content for rel, reading
// and compressing it from disk on a cache miss, matching spec section
// 4.4's "stat; if size <= maxFileSize, read into memory... optionally
// precompress" description.
func (m *staticMount) loadCached(rel, abs string, info os.FileInfo) (*assetMeta, []byte, error) {
	m.mu.Lock()
	meta, ok := m.meta[rel]
	m.mu.Unlock()

	if ok && meta.modTime.Equal(info.ModTime()) && meta.size == info.Size() {
		if content, found := m.loadVariant(rel, ""); found {
			return meta, content, nil
		}
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, err
	}

	contentType := mimeType(rel)
	compressible := isCompressible(contentType)

	meta = &assetMeta{
		relPath:      rel,
		modTime:      info.ModTime(),
		size:         info.Size(),
		etag:         buildETag(info.ModTime(), info.Size()),
		contentType:  contentType,
		compressible: compressible,
		cached:       true,
	}

	m.content.Set(m.cacheKey(rel, ""), raw)

	if compressible {
		if m.opts.Gzip {
			if gz, err := gzipBytes(raw); err == nil {
				m.content.Set(m.cacheKey(rel, "gzip"), gz)
				meta.hasGzip = true
			}
		}
		if m.opts.Brotli {
			if br, err := brotliBytes(raw); err == nil {
				m.content.Set(m.cacheKey(rel, "br"), br)
				meta.hasBrotli = true
			}
		}
	}

	m.mu.Lock()
	m.meta[rel] = meta
	m.mu.Unlock()

	m.watch(filepath.Dir(abs))

	return meta, raw, nil
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildETag produces a `"mtimeMillis-size-hash"` validator, where hash is the
// xxhash of the "mtimeMillis-size" string. It is derived from modification
// time and size only: two files sharing both get the same ETag whatever
// their contents.
func buildETag(modTime time.Time, size int64) string {
	h := xxhash.Sum64([]byte(fmt.Sprintf("%d-%d", modTime.UnixMilli(), size)))
	return fmt.Sprintf(`"%d-%d-%x"`, modTime.UnixMilli(), size, h)
}

func mimeType(rel string) string {
	ext := filepath.Ext(rel)
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

var compressibleTypePrefixes = []string{
	"text/", "application/json", "application/javascript", "application/xml",
	"application/toml", "application/yaml", "image/svg+xml",
}

func isCompressible(contentType string) bool {
	for _, p := range compressibleTypePrefixes {
		if strings.HasPrefix(contentType, p) {
			return true
		}
	}
	return false
}

// registerStatic mounts root under prefix with `DefaultStaticOptions()`,
// sized by `Config.StaticCacheBytes`. Use `App.StaticWithOptions` for
// per-mount control.
func (a *App) registerStatic(prefix, root string, middleware []Middleware) {
	opts := DefaultStaticOptions()
	opts.MaxCacheSize = 0 // let staticOptionsForApp fill this in from Config

	a.registerStaticWithOptions(prefix, root, a.staticOptionsForApp(opts), middleware)
}

// staticOptionsForApp folds `Config.StaticCacheBytes` into opts when the
// caller left `MaxCacheSize` unset, so the app-wide config knob sizes any
// mount that doesn't override it explicitly via `StaticWithOptions`.
func (a *App) staticOptionsForApp(opts StaticOptions) StaticOptions {
	if opts.MaxCacheSize == 0 {
		if a.Config.StaticCacheBytes > 0 {
			opts.MaxCacheSize = int64(a.Config.StaticCacheBytes)
		} else {
			opts.MaxCacheSize = DefaultStaticOptions().MaxCacheSize
		}
	}

	return opts
}

func (a *App) registerStaticWithOptions(prefix, root string, opts StaticOptions, middleware []Middleware) {
	opts = a.staticOptionsForApp(opts)

	mount := newStaticMount(a, prefix, root, opts)

	handler := func(c *Context) error { return mount.serve(c) }
	pattern := joinPrefix(prefix, "/*")

	a.router.insert("GET", pattern, handler, middleware)
	a.router.insert("HEAD", pattern, handler, middleware)

	a.AddShutdownJob("static:"+prefix, func(ctx context.Context) error {
		if err := mount.close(); err != nil && a.Logger != nil {
			a.Logger.Warnf("static: closing watcher for %s: %v", prefix, err)
		}
		return nil
	})
}
