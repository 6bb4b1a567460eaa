package nextrush

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"os"
	"strings"
)

// BodyKind tags which union member of `ParsedBody` is populated, matching
// spec section 3's "Parsed body (union)" data model.
type BodyKind uint8

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyForm
	BodyMultipart
	BodyText
	BodyRaw
)

// ParsedBody is the result of dispatching a request body by Content-Type,
// per spec section 4.3's parser table.
type ParsedBody struct {
	Kind BodyKind

	JSON      interface{}
	Form      url.Values
	Text      string
	Raw       []byte
	Multipart *MultipartForm
}

// MultipartForm holds the fields and files parsed from a
// "multipart/form-data" body.
type MultipartForm struct {
	Fields url.Values
	Files  []*UploadedFile
}

// UploadedFile is one file part of a multipart body. Data is nil when the
// file was streamed to TempPath instead of kept in memory.
type UploadedFile struct {
	Field    string
	Filename string
	MIME     string
	Size     int64
	Data     []byte
	TempPath string
}

// BodyParserOptions bounds body intake, matching spec section 4.3's limit
// table (`maxSize`, per-file size, file count, total request size).
type BodyParserOptions struct {
	MaxBodyBytes     int64
	MaxFileBytes     int64
	MaxFiles         int
	MemoryThreshold  int64 // files larger than this stream to TempDir
	TempDir          string
}

// DefaultBodyParserOptions returns sane limits for a new `App`.
func DefaultBodyParserOptions() BodyParserOptions {
	return BodyParserOptions{
		MaxBodyBytes:    10 << 20,
		MaxFileBytes:    5 << 20,
		MaxFiles:        16,
		MemoryThreshold: 1 << 20,
	}
}

// Body parses (and caches) the request body according to its Content-Type,
// per spec section 4.3. Subsequent calls on the same `Context` return the
// cached result without re-reading the stream.
func (c *Context) Body() (*ParsedBody, error) {
	if c.bodyParsed {
		return c.parsedBody, c.bodyErr
	}

	c.bodyParsed = true
	c.parsedBody, c.bodyErr = c.App.bodyParser().parse(c)
	return c.parsedBody, c.bodyErr
}

type bodyParser struct {
	opts BodyParserOptions
}

func (a *App) bodyParser() *bodyParser {
	opts := DefaultBodyParserOptions()
	if a.Config.MaxBodyBytes > 0 {
		opts.MaxBodyBytes = a.Config.MaxBodyBytes
	}
	if a.BodyParser != nil {
		opts = *a.BodyParser
	}
	return &bodyParser{opts: opts}
}

func (p *bodyParser) limited(r io.Reader) *limitedReader {
	return &limitedReader{r: io.LimitReader(r, p.opts.MaxBodyBytes+1), limit: p.opts.MaxBodyBytes}
}

// limitedReader reads up to limit+1 bytes so a caller can detect overrun
// (n > limit) without having buffered the entire oversized body, matching
// spec section 4.3's "fails before the remaining bytes are read".
type limitedReader struct {
	r     io.Reader
	limit int64
}

func (p *bodyParser) parse(c *Context) (*ParsedBody, error) {
	raw := c.Request.Raw
	contentType := raw.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return p.parseJSON(raw.Body)

	case mediaType == "application/x-www-form-urlencoded":
		return p.parseForm(raw.Body)

	case strings.HasPrefix(mediaType, "multipart/form-data"):
		return p.parseMultipart(raw.Body, params["boundary"])

	case strings.HasPrefix(mediaType, "text/"):
		return p.parseText(raw.Body)

	default:
		return p.parseRaw(raw.Body)
	}
}

func (p *bodyParser) readAll(r io.Reader) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(r, p.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, ErrBadRequest("failed to read request body")
	}

	if int64(len(buf)) > p.opts.MaxBodyBytes {
		return nil, ErrPayloadTooLarge("request body exceeds limit")
	}

	return buf, nil
}

func (p *bodyParser) parseJSON(r io.Reader) (*ParsedBody, error) {
	buf, err := p.readAll(r)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return &ParsedBody{Kind: BodyJSON, JSON: nil}, nil
	}

	var v interface{}
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, ErrBadRequest("malformed json body")
	}

	return &ParsedBody{Kind: BodyJSON, JSON: v}, nil
}

func (p *bodyParser) parseForm(r io.Reader) (*ParsedBody, error) {
	buf, err := p.readAll(r)
	if err != nil {
		return nil, err
	}

	values, err := url.ParseQuery(string(buf))
	if err != nil {
		return nil, ErrBadRequest("malformed urlencoded body")
	}

	return &ParsedBody{Kind: BodyForm, Form: values}, nil
}

func (p *bodyParser) parseText(r io.Reader) (*ParsedBody, error) {
	buf, err := p.readAll(r)
	if err != nil {
		return nil, err
	}

	return &ParsedBody{Kind: BodyText, Text: string(buf)}, nil
}

func (p *bodyParser) parseRaw(r io.Reader) (*ParsedBody, error) {
	buf, err := p.readAll(r)
	if err != nil {
		return nil, err
	}

	return &ParsedBody{Kind: BodyRaw, Raw: buf}, nil
}

// parseMultipart streams the body part by part via `mime/multipart`,
// classifying each part as a file (has a filename) or a field, honoring
// per-file, file-count, and total-size limits independently, per spec
// section 4.3.
func (p *bodyParser) parseMultipart(r io.Reader, boundary string) (*ParsedBody, error) {
	if boundary == "" {
		return nil, ErrBadRequest("missing multipart boundary")
	}

	reader := multipart.NewReader(io.LimitReader(r, p.opts.MaxBodyBytes+1), boundary)
	form := &MultipartForm{Fields: url.Values{}}

	var total int64

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrBadRequest("malformed multipart body")
		}

		filename := part.FileName()

		if filename == "" {
			buf, err := p.readAll(part)
			part.Close()
			if err != nil {
				return nil, err
			}

			total += int64(len(buf))
			if total > p.opts.MaxBodyBytes {
				return nil, ErrPayloadTooLarge("request body exceeds limit")
			}

			form.Fields.Add(part.FormName(), string(buf))
			continue
		}

		if len(form.Files) >= p.opts.MaxFiles {
			part.Close()
			return nil, ErrPayloadTooLarge("too many file parts")
		}

		file, err := p.readFilePart(part, filename)
		part.Close()
		if err != nil {
			return nil, err
		}

		total += file.Size
		if total > p.opts.MaxBodyBytes {
			if file.TempPath != "" {
				os.Remove(file.TempPath)
			}
			return nil, ErrPayloadTooLarge("request body exceeds limit")
		}

		file.Field = part.FormName()
		form.Files = append(form.Files, file)
	}

	return &ParsedBody{Kind: BodyMultipart, Multipart: form}, nil
}

// readFilePart reads one file part up to MaxFileBytes+1, streaming to
// TempDir once MemoryThreshold is exceeded, so a single huge upload never
// has to be buffered whole in memory before the limit check can reject it.
func (p *bodyParser) readFilePart(part *multipart.Part, filename string) (*UploadedFile, error) {
	limited := io.LimitReader(part, p.opts.MaxFileBytes+1)

	if p.opts.TempDir == "" || p.opts.MemoryThreshold <= 0 {
		buf, err := io.ReadAll(limited)
		if err != nil {
			return nil, ErrBadRequest("failed to read uploaded file")
		}
		if int64(len(buf)) > p.opts.MaxFileBytes {
			return nil, ErrPayloadTooLarge("uploaded file exceeds limit")
		}

		return &UploadedFile{Filename: filename, MIME: part.Header.Get("Content-Type"), Size: int64(len(buf)), Data: buf}, nil
	}

	memBuf := make([]byte, 0, p.opts.MemoryThreshold)
	readBuf := make([]byte, 32*1024)
	var spilled *os.File
	var total int64

	for {
		n, err := limited.Read(readBuf)
		if n > 0 {
			total += int64(n)
			if total > p.opts.MaxFileBytes {
				if spilled != nil {
					spilled.Close()
					os.Remove(spilled.Name())
				}
				return nil, ErrPayloadTooLarge("uploaded file exceeds limit")
			}

			if spilled == nil && int64(len(memBuf)+n) > p.opts.MemoryThreshold {
				f, ferr := os.CreateTemp(p.opts.TempDir, "nextrush-upload-*")
				if ferr != nil {
					return nil, ErrInternal(ferr)
				}
				if _, werr := f.Write(memBuf); werr != nil {
					f.Close()
					os.Remove(f.Name())
					return nil, ErrInternal(werr)
				}
				spilled = f
			}

			if spilled != nil {
				if _, werr := spilled.Write(readBuf[:n]); werr != nil {
					spilled.Close()
					os.Remove(spilled.Name())
					return nil, ErrInternal(werr)
				}
			} else {
				memBuf = append(memBuf, readBuf[:n]...)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			if spilled != nil {
				spilled.Close()
				os.Remove(spilled.Name())
			}
			return nil, ErrBadRequest("failed to read uploaded file")
		}
	}

	contentType := part.Header.Get("Content-Type")

	if spilled != nil {
		spilled.Close()
		return &UploadedFile{Filename: filename, MIME: contentType, Size: total, TempPath: spilled.Name()}, nil
	}

	return &UploadedFile{Filename: filename, MIME: contentType, Size: total, Data: memBuf}, nil
}
