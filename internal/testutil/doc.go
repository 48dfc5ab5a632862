// Package testutil contains helper builders and stubs used across tests to
// reduce boilerplate when constructing run configurations and scripting
// generator behaviour. They are not intended for production usage.
package testutil
