package internal

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var logger = GetLogger("internal")

func StringContains(s []string, e string) bool {
	for _, item := range s {
		if item == e {
			return true
		}
	}
	return false
}

// FormatBytes renders n as "1.5 KiB (1536 Bytes)", plain bytes below 1 KiB.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d Bytes", n)
	}
	return fmt.Sprintf("%s (%d Bytes)", humanize.IBytes(uint64(n)), n)
}

// ShortHex is the first n hex digits of b, used to keep log lines short.
func ShortHex(b []byte, n int) string {
	s := hex.EncodeToString(b)
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// Rate is the transfer speed of n bytes over d in humanized units per second.
func Rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	perSec := float64(n) / d.Seconds()
	return humanize.IBytes(uint64(perSec)) + "/s"
}

// RemovePassword masks the password part of a redis style address.
func RemovePassword(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	start := strings.Index(uri, "://")
	if start < 0 {
		start = 0
	} else {
		start += 3
	}
	colon := strings.Index(uri[start:at], ":")
	if colon < 0 {
		return uri
	}
	return uri[:start+colon+1] + "****" + uri[at:]
}
