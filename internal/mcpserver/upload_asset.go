package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxAssetSize = 10 << 20 // 10 MB

// assetFormats lists the attachment formats the vault accepts. The first
// extension of each entry is canonical; the rest are spelling variants of the
// same format.
var assetFormats = []struct {
	mime string
	exts []string
}{
	{"image/png", []string{".png"}},
	{"image/jpeg", []string{".jpg", ".jpeg"}},
	{"image/gif", []string{".gif"}},
	{"image/webp", []string{".webp"}},
	{"image/svg+xml", []string{".svg"}},
	{"application/pdf", []string{".pdf"}},
}

var (
	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	metadataIP     = net.ParseIP("169.254.169.254")
)

func extForMIME(mime string) string {
	mime = strings.TrimSpace(strings.Split(mime, ";")[0])
	for _, f := range assetFormats {
		if f.mime == mime {
			return f.exts[0]
		}
	}
	return ""
}

// allowedExts renders the accepted extensions for error messages.
func allowedExts() string {
	var names []string
	for _, f := range assetFormats {
		for _, e := range f.exts {
			names = append(names, strings.TrimPrefix(e, "."))
		}
	}
	return strings.Join(names, ", ")
}

func extAllowed(ext string) bool {
	for _, f := range assetFormats {
		for _, e := range f.exts {
			if e == ext {
				return true
			}
		}
	}
	return false
}

// sameFormat reports whether two extensions name the same format, so a .jpeg
// upload passes the .jpg sniff result.
func sameFormat(a, b string) bool {
	if a == b {
		return true
	}
	for _, f := range assetFormats {
		var hasA, hasB bool
		for _, e := range f.exts {
			hasA = hasA || e == a
			hasB = hasB || e == b
		}
		if hasA {
			return hasB
		}
	}
	return false
}

type uploadResult struct {
	SavedPath     string `json:"savedPath"`
	MarkdownImage string `json:"markdownImage"`
}

// uploadAsset stores an image or PDF in the vault's attachments directory.
// The source is either a data: URI or a remote http(s) URL; remote fetches
// refuse loopback and cloud metadata targets.
func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filename := req.GetString("filename", "")

	var data []byte
	var detectedExt string

	if strings.HasPrefix(rawURL, "data:") {
		data, detectedExt, err = decodeDataURI(rawURL)
	} else {
		data, detectedExt, err = download(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(data) > maxAssetSize {
		return mcp.NewToolResultError(fmt.Sprintf("asset exceeds size limit: %d bytes (limit %d)", len(data), maxAssetSize)), nil
	}

	filename = assetFilename(filename, rawURL, detectedExt)

	ext := strings.ToLower(filepath.Ext(filename))
	if !extAllowed(ext) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension %s (allowed: %s)", ext, allowedExts())), nil
	}

	if err := sniffContent(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	savePath := filepath.Join("attachments", filename)

	if _, readErr := s.store.Read(savePath); readErr == nil {
		return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", savePath)), nil
	}

	if err := s.store.Write(savePath, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store attachment: %v", err)), nil
	}

	urlPath := "/attachments/" + filename
	out, _ := json.Marshal(uploadResult{
		SavedPath:     urlPath,
		MarkdownImage: fmt.Sprintf("![%s](%s)", filename, urlPath),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI splits a data:<mime>;base64,<payload> URI into raw bytes
// and the canonical extension for its MIME type.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI: no comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("data URI must be base64-encoded")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("decode base64 payload: %w", err)
		}
	}

	mime := strings.TrimSuffix(meta, ";base64")
	ext := extForMIME(mime)
	if ext == "" {
		return nil, "", fmt.Errorf("data URI has unsupported MIME type %s", mime)
	}
	return data, ext, nil
}

// download fetches a remote asset. The blocked-host check runs before the
// first request and again on every redirect hop.
func download(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q, want http or https", parsed.Scheme)
	}

	if err := blockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return blockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read asset body: %w", err)
	}
	if len(data) > maxAssetSize {
		return nil, "", fmt.Errorf("asset exceeds size limit of %d bytes", maxAssetSize)
	}

	return data, extForMIME(resp.Header.Get("Content-Type")), nil
}

// blockedHost rejects loopback and cloud metadata targets. DNS failures pass
// through so the client surfaces them as ordinary request errors.
func blockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	var addrs []net.IP
	if ip := net.ParseIP(host); ip != nil {
		addrs = append(addrs, ip)
	} else if ips, err := net.LookupIP(host); err == nil {
		addrs = ips
	}

	for _, ip := range addrs {
		switch {
		case ip.IsLoopback():
			return fmt.Errorf("blocked host: %s resolves to loopback", host)
		case ip.Equal(metadataIP):
			return fmt.Errorf("blocked host: %s is the cloud metadata endpoint", host)
		}
	}
	return nil
}

// assetFilename picks the stored name: caller-supplied first, then the URL
// basename when it carries an extension, then a generated UUID name.
func assetFilename(requested, rawURL, detectedExt string) string {
	name := requested
	if name == "" && !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
				name = base
			}
		}
	}
	if name == "" {
		if detectedExt == "" {
			detectedExt = ".bin"
		}
		name = uuid.New().String() + detectedExt
	}
	return sanitizeFilename(name)
}

// sanitizeFilename reduces name to a single safe path element.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// sniffContent verifies the bytes look like the format the extension claims.
// SVG is text and gets a tag check instead of magic bytes.
func sniffContent(data []byte, ext string) error {
	if ext == ".svg" {
		head := data
		if len(head) > 1024 {
			head = head[:1024]
		}
		if !bytes.Contains(head, []byte("<svg")) {
			return fmt.Errorf("svg content is missing an <svg tag")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	if !sameFormat(ext, extForMIME(detected)) {
		return fmt.Errorf("content sniffed as %s, which does not match extension %s", detected, ext)
	}
	return nil
}
