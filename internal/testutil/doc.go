// Package testutil contains helper builders used across tests to cut down
// boilerplate when constructing core model objects (sessions, events,
// function call/response parts). They are not intended for production usage.
package testutil
