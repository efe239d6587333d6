package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
	"github.com/lvoz2/weblib/search/clients"
	"github.com/lvoz2/weblib/utils"
	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
)

const (
	// sriPlaceholder marks link and script tags whose integrity attribute
	// should be filled in before the page is served.
	sriPlaceholder = "<integrity_hash>"

	// sriFetchTimeout bounds hashing of remote assets. A slow asset loses its
	// integrity attribute instead of stalling the page.
	sriFetchTimeout = time.Second
)

var sriAlgorithms = []string{"sha256", "sha384", "sha512"}

// SRIRewriter injects subresource-integrity hashes into served HTML. Local
// asset paths are hashed from disk under root; remote ones are fetched once
// and cached by source url.
type SRIRewriter struct {
	root string
	alg  string

	client *clients.HttpClient

	mu    sync.Mutex
	cache map[string]string
}

func NewSRIRewriter(root, alg string) (*SRIRewriter, error) {
	if !utils.ContainsString(sriAlgorithms, alg) {
		return nil, errors.Errorf("SRI hashes can only be created using sha256, sha384, or sha512, got %q", alg)
	}
	return &SRIRewriter{
		root:   root,
		alg:    alg,
		client: clients.NewHttpClient(sriFetchTimeout),
		cache:  make(map[string]string),
	}, nil
}

// ServePage returns a handler serving one HTML file with integrity hashes
// injected.
func (s *SRIRewriter) ServePage(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := os.ReadFile(path)
		if err != nil {
			c.String(http.StatusNotFound, "not found")
			return
		}
		page, err := s.Rewrite(c.Request.Context(), raw)
		if err != nil {
			Logger.Log.Errorln("sri rewrite failed:", err)
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
}

// Rewrite replaces integrity placeholders on link and script tags with real
// subresource-integrity hashes. A tag whose asset cannot be read or fetched
// loses its integrity attribute rather than failing the whole page.
func (s *SRIRewriter) Rewrite(ctx context.Context, page []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	doc.Find("link[integrity], script[integrity]").Each(func(_ int, tag *goquery.Selection) {
		if tag.AttrOr("integrity", "") != sriPlaceholder {
			return
		}
		attr := "src"
		if goquery.NodeName(tag) == "link" {
			attr = "href"
		}
		src := tag.AttrOr(attr, "")
		if src == "" {
			tag.RemoveAttr("integrity")
			return
		}
		hash, err := s.hashFor(ctx, src)
		if err != nil {
			Logger.Log.Warnf("dropping integrity for %q: %v", src, err)
			tag.RemoveAttr("integrity")
			return
		}
		tag.SetAttr("integrity", hash)
	})

	out, err := doc.Html()
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (s *SRIRewriter) hashFor(ctx context.Context, src string) (string, error) {
	s.mu.Lock()
	hash, ok := s.cache[src]
	s.mu.Unlock()
	if ok {
		return hash, nil
	}

	data, err := s.readAsset(ctx, src)
	if err != nil {
		return "", err
	}
	hash = s.alg + "-" + base64.StdEncoding.EncodeToString(s.digest(data))

	s.mu.Lock()
	s.cache[src] = hash
	s.mu.Unlock()
	return hash, nil
}

func (s *SRIRewriter) readAsset(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		// Site-relative asset, hash it straight off disk.
		return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(u.Path, "/"))))
	}

	res, err := s.client.Get(ctx, src)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

func (s *SRIRewriter) digest(data []byte) []byte {
	switch s.alg {
	case "sha256":
		sum := sha256.Sum256(data)
		return sum[:]
	case "sha384":
		sum := sha512.Sum384(data)
		return sum[:]
	default:
		sum := sha512.Sum512(data)
		return sum[:]
	}
}
