// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing decks, plans and scripted model
// responses. These helpers are intentionally minimal and not intended for
// production usage.
package testutil
