package bot

import (
	"fmt"
	"strings"
)

// ParseIDArg extracts the single identifier argument of a command.
func ParseIDArg(args string) (string, error) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return "", fmt.Errorf("identifier is required")
	case 1:
		return fields[0], nil
	default:
		return "", fmt.Errorf("expected one identifier, got %d", len(fields))
	}
}
