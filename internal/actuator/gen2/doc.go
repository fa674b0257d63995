// See server.go for the package overview.
package gen2
