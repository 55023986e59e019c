package utils

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ChatID derives the canonical chat id for two participants. It does not
// depend on argument order and is defined for a self chat (a == b).
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("chat_%s_%s", ids[0], ids[1])
}

// MessageID returns a unique id whose lexical order follows creation time.
func MessageID() string {
	return "msg_" + uuid.Must(uuid.NewV7()).String()
}

func UserID() string {
	return uuid.NewString()
}
