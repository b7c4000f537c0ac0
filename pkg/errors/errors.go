/*
 * Copyright 2020-2021 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive signals that the snapshot was requested while another one is still in flight for the same process
	ErrAlreadyActive = errors.New("snapshot is already active for this process")

	// ErrNoActiveSnapshot signals that the snapshot teardown was requested but no snapshot is in flight
	ErrNoActiveSnapshot = errors.New("no active snapshot for this process")

	// ErrRegionUnmapped is thrown by the protection sweep when a page can't be resolved in the page table
	ErrRegionUnmapped = errors.New("page table entry could not be resolved within the region")

	// ErrHTTPServerUnavailable signals that the HTTP server is not running on the specified transport
	ErrHTTPServerUnavailable = func(transport string, err error) error {
		return fmt.Errorf("memctx API server up and running on %s? %v", transport, err)
	}
)

// SnapshotSetupError is returned when the protection sweep fails and all
// partially protected regions were rolled back to their original state.
type SnapshotSetupError struct {
	Err error
}

// Error returns the error message.
func (e *SnapshotSetupError) Error() string {
	return "snapshot setup failed: " + e.Err.Error()
}

// Unwrap returns the cause of the setup failure.
func (e *SnapshotSetupError) Unwrap() error { return e.Err }

// CaptureError is returned when the pre-write content of a faulted page
// couldn't be saved. The snapshot is forcibly discarded at that point.
type CaptureError struct {
	Addr uint64
	Err  error
}

// Error returns the error message.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("couldn't capture page content at %x: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying page read error.
func (e *CaptureError) Unwrap() error { return e.Err }

// RestoreWriteError is returned when a saved page couldn't be copied back to
// its original address. Pages not yet drained remain in the vault, so the
// caller may retry the restore.
type RestoreWriteError struct {
	Addr uint64
	Err  error
}

// Error returns the error message.
func (e *RestoreWriteError) Error() string {
	return fmt.Sprintf("couldn't restore page content at %x: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying page write error.
func (e *RestoreWriteError) Unwrap() error { return e.Err }

// IsSnapshotSetupFailed determines if the error is of SnapshotSetupError type.
func IsSnapshotSetupFailed(err error) bool {
	var e *SnapshotSetupError
	return errors.As(err, &e)
}

// IsCaptureFailed determines if the error is of CaptureError type.
func IsCaptureFailed(err error) bool {
	var e *CaptureError
	return errors.As(err, &e)
}

// IsRestoreWriteFailed determines if the error is of RestoreWriteError type.
func IsRestoreWriteFailed(err error) bool {
	var e *RestoreWriteError
	return errors.As(err, &e)
}
