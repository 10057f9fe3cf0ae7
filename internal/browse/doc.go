// Package browse enumerates a hierarchical item namespace in pages.
//
// Enumeration runs in two ordered phases under one branch: first the child
// branches, then the leaf items. Elements are fetched from the remote
// enumerator in blocks of BlockSize until the caller's page cap is reached.
// When the cap cuts a browse short, a Cursor remembers the branch, the active
// phase and the open remote enumerator so BrowseNext can resume exactly
// where the previous page stopped.
//
// Every page is validated as a batch against the namespace to decide which
// elements are items. Enumeration alone does not say so: a branch may also
// be a readable item.
//
// A Cursor belongs to one caller at a time and is not safe for concurrent
// use. Dispose releases its remote enumerator.
package browse
