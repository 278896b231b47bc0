// Package transfer moves object bytes between the local filesystem and the
// remote store.
//
// Downloads are a pipeline: an Enumerator walks a project, dataset or object
// group and pushes Items onto a bounded Queue, a Downloader drains the Queue
// with a fixed number of workers, each one resolving a signed link and
// streaming the object to the path chosen by a layout.Strategy. The Queue is
// closed by the Enumerator once every listing has finished.
//
// Uploads go through an Uploader, which switches between a single PUT and a
// multipart upload at the chunk size.
//
// Every error leaving the package is an *Error or a *MultiError of them.
package transfer
