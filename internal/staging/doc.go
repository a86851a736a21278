// SPDX-License-Identifier: MPL-2.0

// Package staging implements staged, atomic publication of build artifacts.
//
// An artifact is written to a uniquely named temporary file, either in a
// dedicated staging area (typically an in-memory filesystem used for fast
// linking) or next to its final path, and is renamed onto the final path only
// after the producing step succeeds. Concurrent publications never share a
// temporary file, so no locking is involved.
//
// The package also decides, once per build, whether a staging area is fit
// for use: it must be an in-memory filesystem with utilization at or below a
// high-water mark.
package staging
