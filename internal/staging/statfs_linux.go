// SPDX-License-Identifier: MPL-2.0

//go:build linux

package staging

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type hostProber struct{}

func (hostProber) Usage(dir string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", dir, err)
	}
	bsize := uint64(st.Bsize)
	fsType := int64(st.Type)
	return Usage{
		Ephemeral: fsType == unix.TMPFS_MAGIC || fsType == unix.RAMFS_MAGIC,
		Total:     st.Blocks * bsize,
		Used:      (st.Blocks - st.Bfree) * bsize,
		Avail:     st.Bavail * bsize,
	}, nil
}
