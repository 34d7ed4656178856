package deltasync

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fetch"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fidx"
	"golang.org/x/net/html"
)

// ResolveTargets turns base into the location the targets live in and the
// index names to sync. base may name a single index, a directory or bucket
// prefix, an HTML page linking to indices, or a plain list with one name
// per line.
func ResolveTargets(ctx context.Context, f fetch.Fetcher, base string) (string, []string, error) {
	base = strings.TrimSpace(base)
	if strings.Contains(base, "://") {
		base = strings.ReplaceAll(base, "\\", "/")
	}
	if base == "" {
		return "", nil, errors.New("empty base location")
	}

	if strings.HasSuffix(base, fidx.Ext) {
		return fetch.Dir(base), FilterTargets([]string{fetch.Base(base)}), nil
	}

	if l, ok := f.(fetch.Lister); ok {
		names, err := l.List(ctx, base)
		if err == nil {
			logger.Debugf("%s is a directory of %d entries", base, len(names))
			return trimSlash(base), FilterTargets(names), nil
		}
		if !errors.Is(err, fetch.ErrNotDir) {
			return "", nil, fmt.Errorf("failed to list %s: %w", base, err)
		}
	}

	content, err := f.Get(ctx, base, 0, fetch.ToEnd)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download target list %s: %w", base, err)
	}
	dir := trimSlash(base)
	if !strings.HasSuffix(base, "/") {
		dir = fetch.Dir(base)
	}
	return dir, FilterTargets(ParseTargetList(content)), nil
}

func trimSlash(location string) string {
	trimmed := strings.TrimRight(location, "/")
	if trimmed == "" || strings.HasSuffix(trimmed, ":") {
		return location
	}
	return trimmed
}

// ParseTargetList extracts the entries of a target list document: the
// link targets of an HTML page, or else its lines.
func ParseTargetList(content []byte) []string {
	trimmed := bytes.TrimLeft(content, " \t\r\n\ufeff")
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return parseHTMLTargets(trimmed)
	}
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 4096), len(content)+1)
	for sc.Scan() {
		names = append(names, sc.Text())
	}
	return names
}

func parseHTMLTargets(content []byte) []string {
	var names []string
	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				logger.Warnf("stopped parsing target page: %v", z.Err())
			}
			return names
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if target := hrefTarget(string(val)); target != "" {
						names = append(names, target)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// hrefTarget is the decoded last path element of a link. Relative links
// into other directories are dropped, as targets are fetched next to the
// page.
func hrefTarget(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		logger.Debugf("ignoring link %q: %v", href, err)
		return ""
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}
	if !u.IsAbs() && u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		if p := path.Clean(u.Path); strings.Contains(p, "/") {
			logger.Warnf("ignoring link %q outside the listed directory", href)
			return ""
		}
	}
	return path.Base(u.Path)
}

// FilterTargets trims names and keeps the first occurrence of each one that
// is an index file name without a leading dot.
func FilterTargets(names []string) []string {
	set := internal.NewStringSet()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fidx.Ext) {
			continue
		}
		if strings.ContainsAny(name, "/\\") {
			logger.Warnf("ignoring target %q with a path separator", name)
			continue
		}
		set.Add(name)
	}
	return set.Elements()
}

// MatchTargets keeps the names matching a doublestar pattern. An empty
// pattern keeps everything.
func MatchTargets(names []string, pattern string) ([]string, error) {
	if pattern == "" {
		return names, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid include pattern %q", pattern)
	}
	var kept []string
	for _, name := range names {
		if ok, _ := doublestar.Match(pattern, name); ok {
			kept = append(kept, name)
		}
	}
	return kept, nil
}
