// Package artifact implements the content-addressed blob store backing
// every downloaded server binary and mod/plugin JAR. Blobs are immutable
// once published and addressed by (algorithm, hex digest); see Store.Add,
// Store.Provision, and Store.Prune in store.go.
package artifact
