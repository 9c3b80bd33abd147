// Package server wires the worker to an HTTP surface: a Fiber application
// that plays the host-page role. Every non-control request is translated into
// a worker fetch event; the /-/worker/ routes expose the page↔worker message
// protocol over JSON. The package also owns the shared upstream http.Client
// and the origin-classifying fetcher injected into the worker.
package server
