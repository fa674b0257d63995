// See session.go for the package overview.
package gen1
