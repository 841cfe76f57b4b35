package history

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownFormat is returned by Export for unsupported formats.
var ErrUnknownFormat = errors.New("unknown export format")

// Export formats.
const (
	FormatTXT = "txt"
	FormatMD  = "md"
	FormatSRT = "srt"
	FormatVTT = "vtt"
)

// Export renders item's final output. Subtitle formats carry a single cue
// spanning the recording.
func Export(item Item, format string) (string, error) {
	end := time.Duration(item.DurationMS) * time.Millisecond

	switch format {
	case FormatTXT:
		return item.OutputFinal, nil
	case FormatMD:
		return fmt.Sprintf("# Transcription\n\n**Date:** %s\n**Mode:** %s\n\n## Output\n\n%s\n",
			item.CreatedAt.Local().Format(time.DateTime), item.ModeKey, item.OutputFinal), nil
	case FormatSRT:
		return fmt.Sprintf("1\n%s --> %s\n%s\n", cueTime(0, ","), cueTime(end, ","), item.OutputFinal), nil
	case FormatVTT:
		return fmt.Sprintf("WEBVTT\n\n%s --> %s\n%s\n", cueTime(0, "."), cueTime(end, "."), item.OutputFinal), nil
	default:
		return "", fmt.Errorf("history: %q: %w", format, ErrUnknownFormat)
	}
}

// ContentType returns the MIME type for an export format.
func ContentType(format string) string {
	switch format {
	case FormatMD:
		return "text/markdown; charset=utf-8"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// cueTime formats d as HH:MM:SS<sep>mmm.
func cueTime(d time.Duration, sep string) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}
