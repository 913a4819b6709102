package keychain

import (
	"strconv"
	"strings"
)

// PartitionListMinimumVersion is the first macOS release whose keychains
// require a key partition list for non-interactive signing.
const PartitionListMinimumVersion = "10.12"

// CompareVersions compares dot-separated versions component by component.
// Numeric components compare numerically; the first differing component
// decides, and a strict prefix orders before its longer counterpart.
func CompareVersions(left string, right string) int {
	leftComponents := splitVersion(left)
	rightComponents := splitVersion(right)
	for index := 0; index < len(leftComponents) && index < len(rightComponents); index++ {
		if result := compareComponent(leftComponents[index], rightComponents[index]); result != 0 {
			return result
		}
	}
	switch {
	case len(leftComponents) < len(rightComponents):
		return -1
	case len(leftComponents) > len(rightComponents):
		return 1
	default:
		return 0
	}
}

func splitVersion(version string) []string {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ".")
}

func compareComponent(left string, right string) int {
	leftNumber, leftErr := strconv.Atoi(left)
	rightNumber, rightErr := strconv.Atoi(right)
	if leftErr == nil && rightErr == nil {
		switch {
		case leftNumber < rightNumber:
			return -1
		case leftNumber > rightNumber:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(left, right)
}
