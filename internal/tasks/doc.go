// Package tasks drives a one-pass sync of watch progress from a media library to a tracker.
//
// # Sync Pass
//
// [Engine.Run] walks a library section in the order the server returns it:
//
//  1. Fetch every show in the section ([services.MediaLibrary.Items])
//  2. Search the tracker by title and pick a candidate
//     - index 0 unless the [ResolutionPolicy] names another index
//     - search errors and missing candidates are logged and reported as "N/A"
//  3. Classify a status with [DetermineStatus] and stage it in a [PendingBuffer]
//  4. Flush the buffer: print the confirmation table, then apply every update in staging order
//  5. Hand the result to the optional [RunRecorder]
//
// Update failures during the flush are fatal and stop the run. Nothing is retried.
//
// # Progress Reporting
//
// Progress goes out on a non-blocking channel of [ProgressUpdate] values.
// Updates use select with default so a slow reader never stalls the sync.
package tasks
