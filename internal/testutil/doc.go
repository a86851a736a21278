// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv),
// directory and file operations (MustChdir, MustMkdirAll, MustWriteFile,
// WriteTree, MustReadFile), resource cleanup (MustClose, DeferClose) and
// loggers for components under test (DiscardLogger, BufferLogger).
package testutil
