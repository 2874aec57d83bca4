// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing raw stream items, scripted raw
// streams, runtimes and sessions. They are not intended for production usage.
package testutil
