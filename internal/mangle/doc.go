// See mangle.go for the package overview.
package mangle
