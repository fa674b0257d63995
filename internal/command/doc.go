// See parser.go for the package overview.
package command
