// Package server provides the HTTP listener for the development server.
//
// The listener binds synchronously, serves every path through the static
// responder, and lets the real-time channel attach extra routes:
//
//   - "/ws", "/events": registered by the real-time channel, exact match
//   - every other path: static files from the document root
//
// Paths reach the static responder as sent. There is no path cleaning and
// no redirect, so "//index.html" is a 404 rather than a 301.
//
// Close is asynchronous and reports completion through a callback, which is
// the contract the shutdown coordinator expects from every resource.
package server
