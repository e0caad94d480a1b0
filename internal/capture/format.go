package capture

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RecordingFileName returns name when given, otherwise
// recording-{unix millis} with an extension matching mimeType.
func RecordingFileName(now time.Time, name, mimeType string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "recording-" + strconv.FormatInt(now.UnixMilli(), 10) + Extension(mimeType)
}

func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.ToLower(strings.TrimSpace(base)) {
	case "audio/wav", "audio/x-wav", strings.ToLower(MimeTypeL16):
		return ".wav"
	case "audio/webm":
		return ".weba"
	case "video/mp4", "audio/mp4":
		return ".mp4"
	default:
		return ".webm"
	}
}

// FormatSize renders a byte count, e.g. "1.5 MiB".
func FormatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatDuration renders elapsed time as M:SS, or H:MM:SS past an hour.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
