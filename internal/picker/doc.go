// Package picker implements the state behind a multi-photo picker: paging
// through a large asset library, tracking which positions are selected, and
// turning a finished selection back into assets or images.
//
// # Components
//
//   - PageFetcher grows a fetched prefix of the library one page at a time
//     as the caller scrolls, coalescing overlapping requests.
//   - SelectionTracker keeps the ordered selection and a bounded cache of
//     decoded previews, independent of how many pages have loaded.
//   - Session ties both together, enforces the selection limit, and fires
//     exactly one of OnFinish or OnCancel.
//
// # Positions
//
// A Position is an index plus a partition. Library positions index the
// fetched window. External positions index images captured during the
// session (for example from a camera) that have no library entry.
//
// # Concurrency
//
// A Session is owned by one caller but is safe to use from the goroutines
// that deliver authorization results and background decodes. Library
// queries and decodes run without holding the session lock.
//
// # Lifecycle
//
//	Idle -> Loading -> Active -> Finished | Cancelled
//
// A session leaves Idle on its first EnsureLoaded and becomes Active once a
// query has completed (or an external image is added). Finished and
// Cancelled are terminal; a new picker presentation needs a new Session.
package picker
