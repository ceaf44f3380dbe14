// Package core provides the conversion service behind the HTTP and CLI front ends.
//
// The package sits between transports and the conversion engine. It can be
// used by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
//   - Service: validates selectors, bounds concurrency and stores results.
//   - UploadLimiter: semaphore shared by all conversions of a Service.
//   - Sweep scheduler: deletes artifacts nobody downloaded.
//   - Error mapping: turns engine and storage errors into coded user messages.
//
// # Conversion Flow
//
//  1. Client calls [Service.Convert] with an io.Reader and raw selector strings
//  2. Selectors are parsed; unknown values fail before any work is queued
//  3. A limiter slot is acquired, waiting at most the configured time
//  4. The engine streams the workbook into a temporary file in storage
//  5. On success the file is renamed to "<uuid>.xlsx" and its name returned
//
// The artifact is fetched with [Service.OpenDownload] and removed with
// [Service.RemoveDownload] once served. [Service.StartSweepScheduler] removes
// whatever is left behind.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE007: Upload and input errors (size, encoding, empty file)
//   - CONV001-CONV004: Conversion failures (timeout, write, serialization)
//   - DL001: Unknown or expired download
//   - UPL002, RATE001: Load shedding
package core
