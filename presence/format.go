package presence

import (
	"fmt"
	"time"
)

// FormatLastSeen renders how long ago ts was, relative to now.
func FormatLastSeen(ts *time.Time, now time.Time) string {
	if ts == nil {
		return "Never"
	}

	elapsed := now.Sub(*ts)
	minutes := int(elapsed / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case minutes < 1:
		return "just now"
	case minutes < 2:
		return "a minute ago"
	case minutes < 60:
		return fmt.Sprintf("%d minutes ago", minutes)
	case hours < 2:
		return "an hour ago"
	case hours < 24:
		return fmt.Sprintf("%d hours ago", hours)
	case days < 2:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return ts.Format("Jan 2, 2006")
	}
}

func StatusText(s Snapshot, isSelfChat bool, now time.Time) string {
	if isSelfChat {
		return "Messages to yourself"
	}
	if s.IsOnline {
		return "Online"
	}
	return "Last seen " + FormatLastSeen(s.LastSeen, now)
}
