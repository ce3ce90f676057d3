// Package api exposes the board over HTTP.
//
// Routes:
//
//	POST   /widget            create a widget
//	GET    /widget            list one page (?page=0&pageSize=10)
//	POST   /widget/in-area    widgets whose centerpoint is inside an area
//	GET    /widget/{id}       fetch a widget
//	POST   /widget/{id}       update a widget
//	DELETE /widget/{id}       delete a widget, returning it
//	GET    /health            liveness
//	GET    /stats             operation and storage counters
//	GET    /ws                websocket change feed
//
// Widget commands are JSON objects:
//
//	{"zIndex": 3, "x": 10, "y": 20, "width": 100, "height": 50}
//
// zIndex is optional. x and y are required, width and height must be
// positive.
//
// Errors are reported as {"title": ..., "detail": ...} with status 400 for
// malformed requests, 404 for unknown widgets, 409 when a write kept losing
// to concurrent modifications and 500 for anything else.
//
// Writes that fail with ErrConcurrentModification are retried with
// exponential backoff up to the configured number of attempts before the
// 409 is returned. Each retry re-reads the board from scratch.
package api
