// Package http wraps an HTTP transfer layer behind a single Query call that
// returns everything about the exchange in one Response value.
//
// This package is designed for programmatic use and provides:
//   - GET/POST/PUT/PATCH/DELETE (any verb) with query-string, form or JSON
//     parameters
//   - TLS peer verification and client certificate authentication
//   - Decoded JSON data, raw body and received header lines
//   - Effective transfer options, metadata and a verbose trace for debugging
//
// Basic Usage:
//
//	client := http.NewClient()
//	resp, err := client.Query(ctx, "GET", "http://openlibrary.org/search.json",
//	    http.Fields{http.F("q", "Alice Wonderland")}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !resp.OK() {
//	    log.Fatal(resp.Err)
//	}
//	fmt.Println(resp.Info[http.InfoTotalTime])
//
// JSON bodies:
//
// When a Content-Type or Accept header names a JSON media type, Fields are
// sent as a JSON object instead of form data:
//
//	resp, err := client.Query(ctx, "POST", "https://api.restful-api.dev/objects",
//	    http.Fields{http.F("name", "The Cat")},
//	    []string{"Content-Type: application/json"})
//
// Errors:
//
// Query returns an error only when it cannot be set up. Network and TLS
// failures end up in Response.Err; HTTP 4xx and 5xx statuses are ordinary
// responses. Always check Response.Err before trusting Body or Data.
//
// Thread Safety:
//
// A Client keeps per-call state and is not safe for concurrent use. Use one
// Client per goroutine.
package http
