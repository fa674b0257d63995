// See manager.go for the package overview.
package valve
