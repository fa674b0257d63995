// See reconciler.go for the package overview.
package reconciler
