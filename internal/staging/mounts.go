// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// mountsPath lists the mounts visible to this process.
const mountsPath = "/proc/self/mounts"

// DetectTmpfs returns the mount point of the first tmpfs listed for this process.
func DetectTmpfs() (string, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return "", fmt.Errorf("failed to read mount table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return FirstTmpfs(f)
}

// FirstTmpfs scans a mount table in fstab format and returns the mount point
// of the first tmpfs entry.
func FirstTmpfs(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[2] != "tmpfs" {
			continue
		}
		return unescapeMountPath(fields[1]), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to scan mount table: %w", err)
	}
	return "", errors.New("no tmpfs mount found")
}

// unescapeMountPath decodes the octal escapes (\040 for space and friends)
// the kernel uses in the mount table.
func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
